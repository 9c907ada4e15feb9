// Package ranking はアップロードされた表形式データからリンク候補を抽出する。
//
// 処理の流れ:
//
//	パース → 下降トレンド行の除外 → 広告/オーガニックの分類 →
//	オーガニックを販売数で安定ソート → 上位N件に切り詰め → 全データセットで和集合 → シャッフル
//
// このパッケージはI/Oを伴わない純粋なロジックのみを持つ。
// 除外セットや倉庫との重複排除はwarehouseパッケージが担当する。
package ranking

import (
	"math"
	"strings"
)

// 入力ファイルの必須カラム名。
const (
	ColumnTrend      = "Tren"
	ColumnIsAd       = "isAd"
	ColumnLink       = "productLink"
	ColumnSalesCount = "Penjualan (30 Hari)"
)

// Trend は商品のトレンド方向を表す。
type Trend int

const (
	// TrendOther は不明または空のトレンド。
	TrendOther Trend = iota
	// TrendUp は上昇トレンド（"NAIK" / "UP"）。
	TrendUp
	// TrendDown は下降トレンド（"TURUN" / "DOWN"）。
	TrendDown
)

// AdFlag は広告フラグを表す。
// "YES"でも"NO"でもない値はどちらにも分類されない。
type AdFlag int

const (
	// AdUnknown は空または不明なフラグ。
	AdUnknown AdFlag = iota
	// AdYes は広告商品。
	AdYes
	// AdNo は非広告（オーガニック）商品。
	AdNo
)

// Row は入力ファイルの1行を表す。1回の処理の間だけ存在する。
type Row struct {
	Trend      Trend
	Ad         AdFlag
	Link       string
	SalesCount int // 直近30日の販売数。欠損・解析不能の場合は0
}

// IsAdvertising は広告商品かどうかを返す。
func (r Row) IsAdvertising() bool {
	return r.Ad == AdYes
}

// IsOrganicCandidate はランキング対象のオーガニック商品かどうかを返す。
// 非広告かつ上昇トレンドの行のみが対象になる。
func (r Row) IsOrganicCandidate() bool {
	return r.Ad == AdNo && r.Trend == TrendUp
}

// Dataset は1ファイル分の行の集合を表す。
type Dataset struct {
	Name string
	Rows []Row
}

// ParseTrend はトレンド列の値を大文字小文字を区別せずに解釈する。
func ParseTrend(s string) Trend {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NAIK", "UP":
		return TrendUp
	case "TURUN", "DOWN":
		return TrendDown
	default:
		return TrendOther
	}
}

// ParseAdFlag は広告フラグ列の値を大文字小文字を区別せずに解釈する。
func ParseAdFlag(s string) AdFlag {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return AdYes
	case "NO":
		return AdNo
	default:
		return AdUnknown
	}
}

// ParseSalesCount は販売数列の先頭の整数部分を読み取る。
// "1.2rb" は1、"abc" や空文字列は0になる。
func ParseSalesCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	n := 0
	digits := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		digits++
		// 桁あふれする値は上限に丸める
		d := int(c - '0')
		if n > (math.MaxInt-d)/10 {
			n = math.MaxInt
			continue
		}
		n = n*10 + d
	}
	if digits == 0 {
		return 0
	}
	if neg {
		return -n
	}
	return n
}
