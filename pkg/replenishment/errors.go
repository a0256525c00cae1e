package replenishment

import (
	"errors"
	"fmt"
	"time"
)

// Common replenishment errors
// 共通の補充計算エラー定義

var (
	// ErrUnresolvableSchedule is returned when no next order date can be produced
	// 次回発注日を決定できない場合のエラー
	ErrUnresolvableSchedule = errors.New("次回発注日を決定できません")

	// ErrScheduleNotFound is returned when a supplier has no calendar for a warehouse
	// 仕入先カレンダーが存在しない場合のエラー
	ErrScheduleNotFound = errors.New("仕入先カレンダーが見つかりません")

	// ErrMalformedHierarchy is returned for cyclic or dangling warehouse references
	// 倉庫階層が不正な場合のエラー
	ErrMalformedHierarchy = errors.New("倉庫階層が不正です")

	// ErrWarehouseNotFound is returned when a warehouse doesn't exist
	// 倉庫が存在しない場合のエラー
	ErrWarehouseNotFound = errors.New("倉庫が見つかりません")

	// ErrNoRows is returned when a run has nothing to calculate
	// 計算対象の行がない場合のエラー
	ErrNoRows = errors.New("計算対象の商品がありません")

	// ErrWriteFailed is returned when order lines could not be persisted
	// 発注明細の書き込み失敗時のエラー
	ErrWriteFailed = errors.New("発注明細の書き込みに失敗しました")
)

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

// ScheduleError represents a failure to resolve an arrival window
// 入荷ウィンドウ算出の失敗を表現
type ScheduleError struct {
	Key   ScheduleKey `json:"key"`   // 仕入先・倉庫
	From  time.Time   `json:"from"`  // 基準日
	Cause error       `json:"cause"` // 原因エラー
}

func (e ScheduleError) Error() string {
	return fmt.Sprintf("スケジュールエラー [%s/%s] %s: %v", e.Key.SupplierID, e.Key.WarehouseID, e.From.Format("2006-01-02"), e.Cause)
}

func (e ScheduleError) Unwrap() error {
	return e.Cause
}

// HierarchyError represents a malformed warehouse hierarchy
// 倉庫階層の構成エラーを表現
type HierarchyError struct {
	Reason      string `json:"reason"`       // cycle, dangling, unreachable, multiple_parents
	WarehouseID string `json:"warehouse_id"` // 問題の倉庫
	Message     string `json:"message"`      // エラーメッセージ
}

func (e HierarchyError) Error() string {
	return fmt.Sprintf("倉庫階層エラー [%s:%s]: %s", e.Reason, e.WarehouseID, e.Message)
}

func (e HierarchyError) Unwrap() error {
	return ErrMalformedHierarchy
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewScheduleError creates a new schedule error
func NewScheduleError(key ScheduleKey, from time.Time, cause error) *ScheduleError {
	return &ScheduleError{
		Key:   key,
		From:  from,
		Cause: cause,
	}
}

// NewHierarchyError creates a new hierarchy error
// 新しい倉庫階層エラーを作成
func NewHierarchyError(reason, warehouseID, message string) *HierarchyError {
	return &HierarchyError{
		Reason:      reason,
		WarehouseID: warehouseID,
		Message:     message,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
