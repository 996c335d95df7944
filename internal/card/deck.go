package card

import (
	"errors"
	"math/rand"
)

// StandardDeckSize 標準 UNO 牌組張數
const StandardDeckSize = 108

// ErrEmptyDeck 牌堆已空
var ErrEmptyDeck = errors.New("deck is empty")

// Deck 牌堆（堆疊，從頂端抽牌）
//
// 內部以 slice 儲存，尾端是頂端，抽牌 O(1)
type Deck struct {
	cards []Card
}

// NewDeck 以指定順序建立牌堆，cards[0] 是第一張被抽出的牌
func NewDeck(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	for i, c := range cards {
		d.cards[len(cards)-1-i] = c
	}
	return d
}

// StandardCards 標準 108 張牌的組成（未洗牌）
//
// 每種顏色：0 一張、1-9 各兩張、Skip / Reverse / DrawTwo 各兩張，共 25 張
// 另有 Wild 四張、WildDrawFour 四張
func StandardCards() []Card {
	cards := make([]Card, 0, StandardDeckSize)
	for _, color := range Colors {
		cards = append(cards, Card{Color: color, Rank: Zero})
		for _, rank := range NumberRanks[1:] {
			cards = append(cards, Card{Color: color, Rank: rank}, Card{Color: color, Rank: rank})
		}
		for _, rank := range ActionRanks {
			cards = append(cards, Card{Color: color, Rank: rank}, Card{Color: color, Rank: rank})
		}
	}
	for i := 0; i < 4; i++ {
		cards = append(cards, Card{Color: Wild, Rank: WildCard})
	}
	for i := 0; i < 4; i++ {
		cards = append(cards, Card{Color: Wild, Rank: WildDrawFour})
	}
	return cards
}

// NewStandardDeck 建立未洗牌的標準牌堆
func NewStandardDeck() *Deck {
	return NewDeck(StandardCards())
}

// Shuffle Fisher-Yates 洗牌
func (d *Deck) Shuffle(r *rand.Rand) {
	r.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw 從頂端抽一張
//
// 牌堆空時回傳 ErrEmptyDeck；要不要把棄牌堆洗回來由呼叫端決定
func (d *Deck) Draw() (Card, error) {
	n := len(d.cards)
	if n == 0 {
		return Card{}, ErrEmptyDeck
	}
	c := d.cards[n-1]
	d.cards = d.cards[:n-1]
	return c, nil
}

// Push 放到頂端
func (d *Deck) Push(cards ...Card) {
	d.cards = append(d.cards, cards...)
}

// InsertAt 放到指定深度（0 = 底部）
func (d *Deck) InsertAt(pos int, c Card) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(d.cards) {
		pos = len(d.cards)
	}
	d.cards = append(d.cards, Card{})
	copy(d.cards[pos+1:], d.cards[pos:])
	d.cards[pos] = c
}

// Top 頂端的牌（不移除）
func (d *Deck) Top() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[len(d.cards)-1], true
}

// TakeAllButTop 取走除了頂端以外的所有牌（棄牌堆回收用）
func (d *Deck) TakeAllButTop() []Card {
	if len(d.cards) <= 1 {
		return nil
	}
	n := len(d.cards)
	rest := make([]Card, n-1)
	copy(rest, d.cards[:n-1])
	d.cards = []Card{d.cards[n-1]}
	return rest
}

// Len 剩餘張數
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards 由頂端到底部的副本
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	for i, c := range d.cards {
		out[len(d.cards)-1-i] = c
	}
	return out
}
