// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizer は端末へ手動送信されるメッセージ本文からHTMLを除去し、
// コンパニオンクライアントが表示するプレーンテキストに変換する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizer はメッセージ本文のサニタイズ機能のインターフェースを定義する。
type MessageSanitizer interface {
	// Sanitize は全てのタグを除去したプレーンテキストを返す。
	// script/styleの中身は捨てられ、URLのクエリ文字列などの&は元の文字に戻される。
	// 前後の空白は取り除かれる。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// messageSanitizer はMessageSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はbluemondayのStrictPolicyを使うMessageSanitizerを生成する。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は全てのタグを除去したプレーンテキストを返す。
// 結果はHTMLとして描画してはならない。
func (s *messageSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
