// Package allocation は倉庫のリンクをバッチへ順番に割り当てる。
//
// 割り当ては純粋な計算であり、永続化はbatchパッケージが担当する。
package allocation

import (
	"errors"
	"sort"
)

// ErrNegativeCount はバッチ数に負の値が指定された場合のエラー。
var ErrNegativeCount = errors.New("batch count must be >= 0")

// Slot は割り当て対象のバッチを表す。
type Slot struct {
	ID       string
	Index    int
	Capacity int
	Links    []string
}

// Assignment は1つのバッチに割り当てられたリンクを表す。
// Linksはバッチの既存の内容を置き換える。
type Assignment struct {
	SlotID string
	Index  int
	Links  []string
}

// Result は割り当て結果を表す。
type Result struct {
	Assigned  []Assignment
	Remaining []string
}

// Allocate はpoolの先頭からリンクを取り出し、Indexの昇順でスロットへ割り当てる。
//
// 各スロットにはmin(Capacity, 残数)件が割り当てられる。
// 容量0のスロット、およびpoolが尽きた後に順番が来たスロットは変更されず、
// Assignedにも含まれない。割り当て済み件数とRemainingの合計は常にlen(pool)に等しい。
func Allocate(pool []string, slots []Slot) Result {
	ordered := make([]Slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	var res Result
	pos := 0
	for _, s := range ordered {
		if pos >= len(pool) {
			break
		}
		if s.Capacity <= 0 {
			continue
		}

		n := s.Capacity
		if rest := len(pool) - pos; n > rest {
			n = rest
		}
		links := make([]string, n)
		copy(links, pool[pos:pos+n])
		pos += n

		res.Assigned = append(res.Assigned, Assignment{
			SlotID: s.ID,
			Index:  s.Index,
			Links:  links,
		})
	}

	res.Remaining = make([]string, len(pool)-pos)
	copy(res.Remaining, pool[pos:])
	return res
}

// ResizePlan はバッチ数変更時に追加・削除するインデックスを表す。
type ResizePlan struct {
	Add    []int // 昇順
	Remove []int // 降順
}

// Resize は現在のインデックス集合をtarget件にするための計画を返す。
//
// 追加は現在の最大インデックスの次から連番で行い、解放済みのインデックスは再利用しない。
// バッチが1件もない場合は1から採番する。
// 削除はインデックスの大きいものから行う。
func Resize(indices []int, target int) (ResizePlan, error) {
	if target < 0 {
		return ResizePlan{}, ErrNegativeCount
	}

	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	var plan ResizePlan
	switch {
	case target > len(sorted):
		next := 1
		if len(sorted) > 0 {
			next = sorted[len(sorted)-1] + 1
		}
		for i := 0; i < target-len(sorted); i++ {
			plan.Add = append(plan.Add, next+i)
		}
	case target < len(sorted):
		for i := len(sorted) - 1; i >= target; i-- {
			plan.Remove = append(plan.Remove, sorted[i])
		}
	}
	return plan, nil
}
