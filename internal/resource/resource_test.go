package resource

import "testing"

func TestSub_NeverNegative(t *testing.T) {
	a := Bundle{Food: 3, Water: 1, Medicine: 0}
	b := Bundle{Food: 10, Water: 1, Medicine: 5}

	got := a.Sub(b)
	if got.Food < 0 || got.Water < 0 || got.Medicine < 0 {
		t.Fatalf("negative component after sub: %+v", got)
	}
	if got != (Bundle{}) {
		t.Fatalf("expected empty bundle, got %+v", got)
	}

	if total := a.Sub(a).Total(); total != 0 {
		t.Fatalf("total(a-a) = %d, want 0", total)
	}
}

func TestDiff_ThenAddReproducesTarget(t *testing.T) {
	target := Bundle{Food: 20, Water: 15, Medicine: 10}
	current := Bundle{Food: 5, Water: 15, Medicine: 2}

	need := Diff(target, current)
	got := current.Add(need).Clamp(target)
	if got != target {
		t.Fatalf("diff/add/clamp round trip = %+v, want %+v", got, target)
	}
}

func TestAllocate_PriorityOrderAndCapacity(t *testing.T) {
	available := Bundle{Medicine: 5, Water: 0, Food: 10}
	requested := Bundle{Medicine: 10, Water: 10, Food: 10}

	shipment := Allocate(available, requested, 8)
	want := Bundle{Medicine: 5, Water: 0, Food: 3}
	if shipment != want {
		t.Fatalf("shipment = %+v, want %+v", shipment, want)
	}
	if shipment.Total() != 8 {
		t.Fatalf("total shipped = %d, want 8", shipment.Total())
	}
}

func TestAllocate_Bounds(t *testing.T) {
	cases := []struct {
		name      string
		available Bundle
		requested Bundle
		capacity  int
		want      Bundle
	}{
		{"empty inventory", Bundle{}, Bundle{Food: 5}, 10, Bundle{}},
		{"zero capacity", Bundle{Food: 5}, Bundle{Food: 5}, 0, Bundle{}},
		{"negative capacity", Bundle{Food: 5}, Bundle{Food: 5}, -3, Bundle{}},
		{"request bounded", Bundle{Food: 9, Water: 9, Medicine: 9}, Bundle{Water: 2}, 100, Bundle{Water: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Allocate(tc.available, tc.requested, tc.capacity); got != tc.want {
				t.Fatalf("Allocate = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestApplyLoss(t *testing.T) {
	cargo := Bundle{Food: 10, Water: 3, Medicine: 1}
	got := cargo.ApplyLoss(0.5)
	want := Bundle{Food: 5, Water: 1, Medicine: 0}
	if got != want {
		t.Fatalf("ApplyLoss(0.5) = %+v, want %+v", got, want)
	}
	if got := cargo.ApplyLoss(0); got != cargo {
		t.Fatalf("ApplyLoss(0) changed cargo: %+v", got)
	}
	if got := cargo.ApplyLoss(1); got != (Bundle{}) {
		t.Fatalf("ApplyLoss(1) = %+v, want empty", got)
	}
}

func TestPhrase(t *testing.T) {
	if got := (Bundle{}).Phrase(false); got != "nothing" {
		t.Fatalf("empty phrase = %q", got)
	}
	if got := (Bundle{Food: 4, Medicine: 2}).Phrase(false); got != "4 food, 2 medicine" {
		t.Fatalf("phrase = %q", got)
	}
	if got := (Bundle{Water: 1}).Phrase(true); got != "0 food, 1 water, 0 medicine" {
		t.Fatalf("phrase includeZero = %q", got)
	}
}
