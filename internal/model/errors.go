// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upload, batch, device, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyRegistered   = "EMAIL_ALREADY_REGISTERED"
	ErrCodeInvalidRegistration      = "INVALID_REGISTRATION"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeUploadNoFiles            = "UPLOAD_NO_FILES"
	ErrCodeUploadTooManyFiles       = "UPLOAD_TOO_MANY_FILES"
	ErrCodeUploadParseFailed        = "UPLOAD_PARSE_FAILED"
	ErrCodeUploadTooLarge           = "UPLOAD_TOO_LARGE"
	ErrCodeInvalidRankThreshold     = "INVALID_RANK_THRESHOLD"
	ErrCodeInvalidBatchCount        = "INVALID_BATCH_COUNT"
	ErrCodeInvalidCapacity          = "INVALID_CAPACITY"
	ErrCodeBatchNotFound            = "BATCH_NOT_FOUND"
	ErrCodeBatchNoDestination       = "BATCH_NO_DESTINATION"
	ErrCodeBatchEmpty               = "BATCH_EMPTY"
	ErrCodeDeviceNameRequired       = "DEVICE_NAME_REQUIRED"
	ErrCodeDeviceNotFound           = "DEVICE_NOT_FOUND"
	ErrCodeVerificationCodeConflict = "VERIFICATION_CODE_CONFLICT"
	ErrCodeInvalidVerificationCode  = "INVALID_VERIFICATION_CODE"
	ErrCodeVerificationCodeNotFound = "VERIFICATION_CODE_NOT_FOUND"
	ErrCodeMessageContentRequired   = "MESSAGE_CONTENT_REQUIRED"
	ErrCodeMessageNotFound          = "MESSAGE_NOT_FOUND"
	ErrCodeCSRFTokenInvalid         = "CSRF_TOKEN_INVALID"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewEmailAlreadyRegisteredError は登録済みのメールアドレスで登録しようとした場合のエラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewInvalidRegistrationError は登録内容が不正な場合のエラーを生成する。
func NewInvalidRegistrationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRegistration,
		Message:  fmt.Sprintf("登録内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "メールアドレスと8文字以上のパスワードを入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUploadNoFilesError はファイルが1つも指定されていない場合のエラーを生成する。
func NewUploadNoFilesError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadNoFiles,
		Message:  "ファイルが選択されていません。",
		Category: "upload",
		Action:   "少なくとも1つのCSVファイルを選択してください。",
	}
}

// NewUploadTooManyFilesError はファイル数が上限を超えた場合のエラーを生成する。
func NewUploadTooManyFilesError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooManyFiles,
		Message:  fmt.Sprintf("一度にアップロードできるファイルは%d件までです。", limit),
		Category: "upload",
		Action:   "ファイルを分けてアップロードしてください。",
	}
}

// NewUploadParseFailedError はアップロードされたファイルを解析できなかった場合のエラーを生成する。
// 1ファイルでも失敗した場合はアップロード全体を中止する。
func NewUploadParseFailedError(filename string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadParseFailed,
		Message:  fmt.Sprintf("ファイルの解析に失敗しました: %s", filename),
		Category: "upload",
		Action:   "CSVまたはXLSX形式のファイルか確認してください。どのファイルも保存されていません。",
	}
}

// NewUploadTooLargeError はアップロード全体のサイズが上限を超えた場合のエラーを生成する。
func NewUploadTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooLarge,
		Message:  fmt.Sprintf("アップロードサイズが上限(%dバイト)を超えています。", maxBytes),
		Category: "upload",
		Action:   "ファイル数を減らして再度アップロードしてください。",
	}
}

// NewInvalidRankThresholdError はランク数が不正な場合のエラーを生成する。
func NewInvalidRankThresholdError(rank int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRankThreshold,
		Message:  fmt.Sprintf("無効なランク数です: %d", rank),
		Category: "validation",
		Action:   "ランク数には1以上の整数を指定してください。",
	}
}

// NewInvalidBatchCountError はバッチ数が不正な場合のエラーを生成する。
func NewInvalidBatchCountError(count, max int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBatchCount,
		Message:  fmt.Sprintf("無効なバッチ数です: %d", count),
		Category: "validation",
		Action:   fmt.Sprintf("バッチ数は0から%dの範囲で指定してください。", max),
	}
}

// NewInvalidCapacityError はバッチ容量が不正な場合のエラーを生成する。
func NewInvalidCapacityError(capacity int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCapacity,
		Message:  fmt.Sprintf("無効なバッチ容量です: %d", capacity),
		Category: "validation",
		Action:   "容量には0以上の整数を指定してください。",
	}
}

// NewBatchNotFoundError はバッチが見つからない場合のエラーを生成する。
func NewBatchNotFoundError(batchID string) *APIError {
	return &APIError{
		Code:     ErrCodeBatchNotFound,
		Message:  fmt.Sprintf("指定されたバッチが見つかりません: %s", batchID),
		Category: "batch",
		Action:   "バッチ一覧を再読み込みしてください。",
	}
}

// NewBatchNoDestinationError は配信先が未選択のバッチを送信しようとした場合のエラーを生成する。
func NewBatchNoDestinationError() *APIError {
	return &APIError{
		Code:     ErrCodeBatchNoDestination,
		Message:  "配信先の端末が選択されていません。",
		Category: "batch",
		Action:   "バッチの配信先を選択してから送信してください。",
	}
}

// NewBatchEmptyError はリンクが空のバッチを送信しようとした場合のエラーを生成する。
func NewBatchEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeBatchEmpty,
		Message:  "バッチにリンクがありません。",
		Category: "batch",
		Action:   "倉庫からリンクを分配してから送信してください。",
	}
}

// NewDeviceNameRequiredError は端末名が空の場合のエラーを生成する。
func NewDeviceNameRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeDeviceNameRequired,
		Message:  "端末名を入力してください。",
		Category: "validation",
		Action:   "端末名は空にできません。",
	}
}

// NewDeviceNotFoundError は端末が見つからない場合のエラーを生成する。
func NewDeviceNotFoundError(deviceID string) *APIError {
	return &APIError{
		Code:     ErrCodeDeviceNotFound,
		Message:  fmt.Sprintf("指定された端末が見つかりません: %s", deviceID),
		Category: "device",
		Action:   "端末一覧を再読み込みしてください。",
	}
}

// NewVerificationCodeConflictError は生成した認証コードが既存のものと衝突した場合のエラーを生成する。
func NewVerificationCodeConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationCodeConflict,
		Message:  "保存に失敗しました: 認証コードが既に存在します。",
		Category: "device",
		Action:   "もう一度お試しください。新しいコードが生成されます。",
	}
}

// NewInvalidVerificationCodeError は認証コードの形式が不正な場合のエラーを生成する。
func NewInvalidVerificationCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVerificationCode,
		Message:  "認証コードは6桁の数字である必要があります。",
		Category: "validation",
		Action:   "ダッシュボードに表示された6桁のコードを入力してください。",
	}
}

// NewVerificationCodeNotFoundError は認証コードに一致する端末がない場合のエラーを生成する。
func NewVerificationCodeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeVerificationCodeNotFound,
		Message:  "認証コードが無効か、見つかりません。",
		Category: "auth",
		Action:   "ダッシュボードで端末の認証コードを確認してください。",
	}
}

// NewMessageContentRequiredError はメッセージ本文が空の場合のエラーを生成する。
func NewMessageContentRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeMessageContentRequired,
		Message:  "端末を選択し、メッセージを入力してください。",
		Category: "validation",
		Action:   "メッセージ本文は空にできません。",
	}
}

// NewMessageNotFoundError はメッセージが見つからない場合のエラーを生成する。
func NewMessageNotFoundError(messageID string) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("指定されたメッセージが見つかりません: %s", messageID),
		Category: "device",
		Action:   "メッセージ一覧を再読み込みしてください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は予期しない内部エラーを生成する。
// 詳細はログにのみ記録し、利用者には一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
