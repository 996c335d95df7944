// Package card 定義 UNO 牌的顏色、點數與合法出牌判定。
//
// 牌本身是不可變的值（Value Object）：
//   - 沒有唯一 ID，同花色同點數的兩張牌完全等價
//   - 手牌比對一律用值相等（==），不信任客戶端傳來的索引
//   - 萬用牌永遠保持 Color = Wild，被選定的顏色記錄在牌局的 activeColor
package card

import (
	"errors"
	"fmt"
)

// Color 牌的顏色
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
	Wild   Color = "wild" // 萬用牌的顏色（尚未指定）
)

// Colors 四種可以被指定的顏色（不含 Wild）
var Colors = []Color{Red, Blue, Green, Yellow}

// Valid 是否為已知顏色
func (c Color) Valid() bool {
	switch c {
	case Red, Blue, Green, Yellow, Wild:
		return true
	}
	return false
}

// Chosen 是否為可以被選定的顏色（萬用牌出牌後的選色）
func (c Color) Chosen() bool {
	return c.Valid() && c != Wild
}

// Rank 牌的點數或功能
type Rank string

const (
	Zero         Rank = "0"
	One          Rank = "1"
	Two          Rank = "2"
	Three        Rank = "3"
	Four         Rank = "4"
	Five         Rank = "5"
	Six          Rank = "6"
	Seven        Rank = "7"
	Eight        Rank = "8"
	Nine         Rank = "9"
	Skip         Rank = "skip"
	Reverse      Rank = "reverse"
	DrawTwo      Rank = "draw_two"
	WildCard     Rank = "wild"
	WildDrawFour Rank = "wild_draw_four"
)

// NumberRanks 數字牌 0-9
var NumberRanks = []Rank{Zero, One, Two, Three, Four, Five, Six, Seven, Eight, Nine}

// ActionRanks 有顏色的功能牌
var ActionRanks = []Rank{Skip, Reverse, DrawTwo}

// Valid 是否為已知點數
func (r Rank) Valid() bool {
	if r.IsNumber() {
		return true
	}
	switch r {
	case Skip, Reverse, DrawTwo, WildCard, WildDrawFour:
		return true
	}
	return false
}

// IsNumber 是否為數字牌
func (r Rank) IsNumber() bool {
	return len(r) == 1 && r[0] >= '0' && r[0] <= '9'
}

// IsAction 是否為有顏色的功能牌（Skip / Reverse / DrawTwo）
func (r Rank) IsAction() bool {
	return r == Skip || r == Reverse || r == DrawTwo
}

// IsWild 是否為萬用牌家族
func (r Rank) IsWild() bool {
	return r == WildCard || r == WildDrawFour
}

// Card 一張 UNO 牌
type Card struct {
	Color Color `json:"color"`
	Rank  Rank  `json:"rank"`
}

// ErrInvalidCard 不存在於標準牌組的組合（如紅色萬用牌、萬用色數字牌）
var ErrInvalidCard = errors.New("invalid card")

// Validate 檢查顏色與點數的組合是否合法
//
// 客戶端送來的牌一定要先經過這裡，再去手牌裡找
func (c Card) Validate() error {
	if !c.Color.Valid() || !c.Rank.Valid() {
		return fmt.Errorf("%w: %s %s", ErrInvalidCard, c.Color, c.Rank)
	}
	if (c.Color == Wild) != c.Rank.IsWild() {
		return fmt.Errorf("%w: %s %s", ErrInvalidCard, c.Color, c.Rank)
	}
	return nil
}

// IsWild 是否為萬用牌
func (c Card) IsWild() bool {
	return c.Color == Wild
}

func (c Card) String() string {
	return string(c.Color) + ":" + string(c.Rank)
}

// IsLegalPlay 判斷出牌是否合法
//
// 規則：顏色符合目前指定色、點數與棄牌堆頂相同、或是萬用牌
func IsLegalPlay(c, top Card, active Color) bool {
	return c.Color == active || c.Rank == top.Rank || c.Color == Wild
}

// Points 結算時手牌的分數
//
//	數字牌：面值
//	Skip / Reverse / DrawTwo：20
//	Wild / WildDrawFour：50
func Points(c Card) int {
	switch {
	case c.Rank.IsNumber():
		return int(c.Rank[0] - '0')
	case c.Rank.IsAction():
		return 20
	case c.Rank.IsWild():
		return 50
	}
	return 0
}

// HandPoints 一手牌的總分
func HandPoints(hand []Card) int {
	total := 0
	for _, c := range hand {
		total += Points(c)
	}
	return total
}
