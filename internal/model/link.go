package model

import (
	"strings"
	"time"
)

// LinkPool はユーザーごとの未割り当てリンクの保管庫（倉庫）を表す。
// Linksは重複を含まない順序付きリスト。
type LinkPool struct {
	UserID    string
	Links     []string
	UpdatedAt time.Time
	// ExcludedCount は配信済みとして除外セットに記録されたリンク数。保存はされない
	ExcludedCount int
}

// ExclusionEntry は配信済みリンクの記録（キャッシュ）を表す。
// 同じ (UserID, Link) の再登録は何もしない。
type ExclusionEntry struct {
	UserID    string
	Link      string
	CreatedAt time.Time
}

// Batch は1台の端末に向けた容量付きのリンク束を表す。
// Linksは改行区切りの文字列として保存される。
type Batch struct {
	ID          string
	UserID      string
	Index       int
	Capacity    int
	Destination *string // 配信先の端末ID。未選択の場合はnil
	Links       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LinkList はLinksを空行を除いたリストとして返す。
func (b *Batch) LinkList() []string {
	return SplitLinks(b.Links)
}

// SplitLinks は改行区切りの文字列をリンクのリストに変換する。
// 前後の空白を取り除き、空行は捨てる。
func SplitLinks(s string) []string {
	var links []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			links = append(links, line)
		}
	}
	return links
}

// JoinLinks はリンクのリストを改行区切りの文字列に変換する。
func JoinLinks(links []string) string {
	return strings.Join(links, "\n")
}
