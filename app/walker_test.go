package app

import (
	"reflect"
	"testing"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

func TestTargetPlies(t *testing.T) {
	cases := []struct {
		name      string
		plan      IntervalPlan
		gamePlies int
		want      []int
	}{
		{
			"every seventh ply up to the cap",
			IntervalPlan{SkipFirst: 0, Increment: 7, MaxPly: 24, Perspective: models.PerspectiveBoth},
			40,
			[]int{7, 14, 21},
		},
		{
			"black perspective keeps even plies",
			IntervalPlan{SkipFirst: 0, Increment: 7, MaxPly: 24, Perspective: models.PerspectiveBlack},
			40,
			[]int{14},
		},
		{
			"white perspective keeps odd plies",
			IntervalPlan{SkipFirst: 0, Increment: 7, MaxPly: 24, Perspective: models.PerspectiveWhite},
			40,
			[]int{7, 21},
		},
		{
			"short game clamps before max ply",
			IntervalPlan{SkipFirst: 0, Increment: 7, MaxPly: 24, Perspective: models.PerspectiveBoth},
			10,
			[]int{7},
		},
		{
			"skip first shifts the grid",
			IntervalPlan{SkipFirst: 4, Increment: 10, MaxPly: 0, Perspective: models.PerspectiveBoth},
			40,
			[]int{4, 14, 24, 34},
		},
		{
			"zero increment yields nothing",
			IntervalPlan{SkipFirst: 0, Increment: 0, MaxPly: 24, Perspective: models.PerspectiveBoth},
			40,
			nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.plan.TargetPlies(tc.gamePlies)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("TargetPlies = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMoveToPly(t *testing.T) {
	cases := []struct {
		move int
		side models.Perspective
		want int
	}{
		{1, models.PerspectiveWhite, 1},
		{1, models.PerspectiveBlack, 2},
		{2, models.PerspectiveWhite, 3},
		{7, models.PerspectiveBlack, 14},
	}
	for _, tc := range cases {
		if got := MoveToPly(tc.move, tc.side); got != tc.want {
			t.Fatalf("MoveToPly(%d, %s) = %d, want %d", tc.move, tc.side, got, tc.want)
		}
	}
}

func TestPlyToMoveRoundTrip(t *testing.T) {
	for ply := 1; ply <= 60; ply++ {
		num, side := PlyToMove(ply)
		if got := MoveToPly(num, side); got != ply {
			t.Fatalf("PlyToMove/MoveToPly round trip broke at ply %d (got %d)", ply, got)
		}
	}
}

func TestFormatPly(t *testing.T) {
	if got := FormatPly(13); got != "7." {
		t.Fatalf("FormatPly(13) = %q, want %q", got, "7.")
	}
	if got := FormatPly(14); got != "7..." {
		t.Fatalf("FormatPly(14) = %q, want %q", got, "7...")
	}
}
