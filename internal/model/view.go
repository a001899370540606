package model

import (
	"fmt"
	"time"
)

type ViewKind string

const (
	ViewAccountInfo ViewKind = "account_info"
	ViewPositions   ViewKind = "positions"
	ViewDeals       ViewKind = "deals"
)

// View selects what a fetch reads once the connection is ready. From and To
// are only meaningful for ViewDeals.
type View struct {
	Kind     ViewKind
	From, To time.Time
}

func AccountInfoView() View {
	return View{Kind: ViewAccountInfo}
}

func PositionsView() View {
	return View{Kind: ViewPositions}
}

func DealsInRange(from, to time.Time) View {
	return View{Kind: ViewDeals, From: from.UTC(), To: to.UTC()}
}

// Key identifies equivalent views for coalescing.
func (v View) Key() string {
	if v.Kind != ViewDeals {
		return string(v.Kind)
	}
	return fmt.Sprintf("%s:%d:%d", v.Kind, v.From.Unix(), v.To.Unix())
}
