package allocation

import (
	"reflect"
	"testing"
)

// TestAllocate_Example はプール[a,b,c,d,e]を容量2,2,2のスロットへ割り当てる基本例を検証する。
func TestAllocate_Example(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e"}
	slots := []Slot{
		{ID: "s1", Index: 1, Capacity: 2},
		{ID: "s2", Index: 2, Capacity: 2},
		{ID: "s3", Index: 3, Capacity: 2},
	}

	got := Allocate(pool, slots)

	want := Result{
		Assigned: []Assignment{
			{SlotID: "s1", Index: 1, Links: []string{"a", "b"}},
			{SlotID: "s2", Index: 2, Links: []string{"c", "d"}},
			{SlotID: "s3", Index: 3, Links: []string{"e"}},
		},
		Remaining: []string{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Allocate = %+v, want %+v", got, want)
	}
}

func TestAllocate_Cases(t *testing.T) {
	tests := []struct {
		name         string
		pool         []string
		slots        []Slot
		wantAssigned []Assignment
		wantRemain   []string
	}{
		{
			name:       "空のプールでは何も割り当てない",
			pool:       nil,
			slots:      []Slot{{ID: "s1", Index: 0, Capacity: 5, Links: []string{"old"}}},
			wantRemain: []string{},
		},
		{
			name: "容量0のスロットはスキップされる",
			pool: []string{"a", "b"},
			slots: []Slot{
				{ID: "zero", Index: 0, Capacity: 0, Links: []string{"keep"}},
				{ID: "s1", Index: 1, Capacity: 1},
			},
			wantAssigned: []Assignment{{SlotID: "s1", Index: 1, Links: []string{"a"}}},
			wantRemain:   []string{"b"},
		},
		{
			name: "プールが尽きた後のスロットは変更されない",
			pool: []string{"a"},
			slots: []Slot{
				{ID: "s1", Index: 0, Capacity: 3},
				{ID: "s2", Index: 1, Capacity: 3, Links: []string{"old"}},
			},
			wantAssigned: []Assignment{{SlotID: "s1", Index: 0, Links: []string{"a"}}},
			wantRemain:   []string{},
		},
		{
			name: "インデックス順に処理される",
			pool: []string{"a", "b", "c"},
			slots: []Slot{
				{ID: "late", Index: 5, Capacity: 1},
				{ID: "early", Index: 2, Capacity: 1},
			},
			wantAssigned: []Assignment{
				{SlotID: "early", Index: 2, Links: []string{"a"}},
				{SlotID: "late", Index: 5, Links: []string{"b"}},
			},
			wantRemain: []string{"c"},
		},
		{
			name:       "スロットがなければ全件残る",
			pool:       []string{"a", "b"},
			wantRemain: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allocate(tt.pool, tt.slots)
			if !reflect.DeepEqual(got.Assigned, tt.wantAssigned) {
				t.Errorf("Assigned = %+v, want %+v", got.Assigned, tt.wantAssigned)
			}
			if !reflect.DeepEqual(got.Remaining, tt.wantRemain) {
				t.Errorf("Remaining = %v, want %v", got.Remaining, tt.wantRemain)
			}
		})
	}
}

// TestAllocate_Conservation は割り当て件数と残数の合計がプール件数と一致することを検証する。
func TestAllocate_Conservation(t *testing.T) {
	pool := make([]string, 37)
	for i := range pool {
		pool[i] = string(rune('A' + i))
	}

	for capacity := 0; capacity <= 12; capacity++ {
		slots := []Slot{
			{ID: "a", Index: 0, Capacity: capacity},
			{ID: "b", Index: 1, Capacity: capacity + 1},
			{ID: "c", Index: 2, Capacity: 2 * capacity},
		}
		res := Allocate(pool, slots)

		total := len(res.Remaining)
		var flat []string
		for _, a := range res.Assigned {
			total += len(a.Links)
			flat = append(flat, a.Links...)
		}
		if total != len(pool) {
			t.Errorf("capacity=%d: total = %d, want %d", capacity, total, len(pool))
		}
		flat = append(flat, res.Remaining...)
		if !reflect.DeepEqual(flat, pool) {
			t.Errorf("capacity=%d: order not preserved", capacity)
		}
	}
}

// TestAllocate_DoesNotMutateInput は入力スライスが変更されないことを検証する。
func TestAllocate_DoesNotMutateInput(t *testing.T) {
	pool := []string{"a", "b", "c"}
	slots := []Slot{{ID: "y", Index: 2, Capacity: 1}, {ID: "x", Index: 1, Capacity: 1}}

	res := Allocate(pool, slots)
	res.Assigned[0].Links[0] = "mutated"

	if pool[0] != "a" {
		t.Errorf("pool mutated: %v", pool)
	}
	if slots[0].ID != "y" {
		t.Errorf("slots reordered: %+v", slots)
	}
}

func TestResize(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
		target  int
		want    ResizePlan
	}{
		{name: "空から3件", indices: nil, target: 3, want: ResizePlan{Add: []int{1, 2, 3}}},
		{name: "最大インデックスの次から追加", indices: []int{1, 2, 5}, target: 5, want: ResizePlan{Add: []int{6, 7}}},
		{name: "大きい順に削除", indices: []int{3, 1, 2, 4}, target: 1, want: ResizePlan{Remove: []int{4, 3, 2}}},
		{name: "全件削除", indices: []int{1, 2}, target: 0, want: ResizePlan{Remove: []int{2, 1}}},
		{name: "変更なし", indices: []int{1, 2}, target: 2, want: ResizePlan{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resize(tt.indices, tt.target)
			if err != nil {
				t.Fatalf("Resize returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResize_Negative(t *testing.T) {
	if _, err := Resize([]int{1}, -1); err != ErrNegativeCount {
		t.Errorf("Resize(-1) error = %v, want ErrNegativeCount", err)
	}
}

// TestAllocate_InOrder は容量2と3のバッチに4件を割り当てると前から順に埋まることを検証する。
func TestAllocate_InOrder(t *testing.T) {
	res := Allocate([]string{"a", "b", "c", "d"}, []Slot{
		{ID: "b2", Index: 2, Capacity: 3},
		{ID: "b1", Index: 1, Capacity: 2},
	})

	want := []Assignment{
		{SlotID: "b1", Index: 1, Links: []string{"a", "b"}},
		{SlotID: "b2", Index: 2, Links: []string{"c", "d"}},
	}
	if !reflect.DeepEqual(res.Assigned, want) {
		t.Errorf("Assigned = %+v, want %+v", res.Assigned, want)
	}
	if len(res.Remaining) != 0 {
		t.Errorf("Remaining = %v, want empty", res.Remaining)
	}
}

// TestResize_IndicesArePositive は空の状態から増減を繰り返してもインデックスが常に1以上であることを検証する。
func TestResize_IndicesArePositive(t *testing.T) {
	var indices []int
	for _, target := range []int{3, 1, 0, 4} {
		plan, err := Resize(indices, target)
		if err != nil {
			t.Fatalf("Resize(%v, %d) returned error: %v", indices, target, err)
		}
		for _, idx := range plan.Add {
			if idx < 1 {
				t.Fatalf("Resize(%v, %d) added non-positive index %d", indices, target, idx)
			}
		}
		removed := make(map[int]bool, len(plan.Remove))
		for _, idx := range plan.Remove {
			removed[idx] = true
		}
		var next []int
		for _, idx := range indices {
			if !removed[idx] {
				next = append(next, idx)
			}
		}
		indices = append(next, plan.Add...)
	}
	if !reflect.DeepEqual(indices, []int{1, 2, 3, 4}) {
		t.Errorf("indices = %v, want [1 2 3 4]", indices)
	}
}

func TestResize_GrowAndShrinkFromThree(t *testing.T) {
	grow, err := Resize([]int{1, 2, 3}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(grow.Add, []int{4, 5}) || grow.Remove != nil {
		t.Errorf("grow = %+v", grow)
	}

	shrink, err := Resize([]int{1, 2, 3}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(shrink.Remove, []int{3, 2}) || shrink.Add != nil {
		t.Errorf("shrink = %+v", shrink)
	}
}
