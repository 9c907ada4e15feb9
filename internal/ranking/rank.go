package ranking

import (
	"errors"
	"math/rand/v2"
	"sort"
)

// ErrInvalidThreshold はランク数が1未満の場合のエラー。
var ErrInvalidThreshold = errors.New("rank threshold must be >= 1")

// Rank は複数データセットから候補リンクを抽出する。シャッフルは行わない。
//
// データセットごとに下降トレンド行を除外し、広告行はすべて、
// オーガニック行は販売数の降順で上位threshold件を採用する。
// 結果は出現順を保った和集合で、空のリンクは含まない。
func Rank(datasets []Dataset, threshold int) ([]string, error) {
	if threshold < 1 {
		return nil, ErrInvalidThreshold
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(link string) {
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}

	for _, ds := range datasets {
		ads, organics := classify(ds.Rows)

		for _, r := range ads {
			add(r.Link)
		}

		// 同数の行は入力順を保つ
		sort.SliceStable(organics, func(i, j int) bool {
			return organics[i].SalesCount > organics[j].SalesCount
		})
		if len(organics) > threshold {
			organics = organics[:threshold]
		}
		for _, r := range organics {
			add(r.Link)
		}
	}

	return out, nil
}

// classify は下降トレンド行を除外したうえで広告行とオーガニック候補行に分ける。
func classify(rows []Row) (ads, organics []Row) {
	for _, r := range rows {
		if r.Trend == TrendDown {
			continue
		}
		switch {
		case r.IsAdvertising():
			ads = append(ads, r)
		case r.IsOrganicCandidate():
			organics = append(organics, r)
		}
	}
	return ads, organics
}

// Shuffle はリンクの順序を一様ランダムに並べ替える（Fisher-Yates）。
// rndがnilの場合はグローバルな乱数源を使う。
func Shuffle(links []string, rnd *rand.Rand) {
	swap := func(i, j int) { links[i], links[j] = links[j], links[i] }
	if rnd == nil {
		rand.Shuffle(len(links), swap)
		return
	}
	rnd.Shuffle(len(links), swap)
}

// Run はRankとShuffleを続けて実行する。
func Run(datasets []Dataset, threshold int, rnd *rand.Rand) ([]string, error) {
	links, err := Rank(datasets, threshold)
	if err != nil {
		return nil, err
	}
	Shuffle(links, rnd)
	return links, nil
}
