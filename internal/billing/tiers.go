// Package billing はクレジット購入（Stripe Checkout）と決済完了webhookによる付与を提供する。
package billing

// Tier はクレジット購入プラン。
type Tier struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Credits     int      `json:"credits"`
	PriceCents  int64    `json:"priceCents"`
	PriceID     string   `json:"priceId"`
	Description string   `json:"description"`
	Popular     bool     `json:"popular"`
	Features    []string `json:"features"`
}

// PriceIDs はプランごとのStripe価格ID。
type PriceIDs struct {
	Starter string
	Plus    string
	Premium string
}

// Catalog はプラン一覧。表示順を保持する。
type Catalog struct {
	tiers []Tier
}

// NewCatalog は価格IDを設定したプラン一覧を生成する。
func NewCatalog(prices PriceIDs) *Catalog {
	return &Catalog{tiers: []Tier{
		{
			ID:          "starter",
			Name:        "Starter",
			Credits:     25,
			PriceCents:  999,
			PriceID:     prices.Starter,
			Description: "Perfect for occasional questions",
			Features: []string{
				"25 AI conversations",
				"Basic retirement planning",
				"Social Security guidance",
				"Investment basics",
			},
		},
		{
			ID:          "plus",
			Name:        "Plus",
			Credits:     100,
			PriceCents:  2999,
			PriceID:     prices.Plus,
			Description: "Great for active planners",
			Popular:     true,
			Features: []string{
				"100 AI conversations",
				"Advanced planning strategies",
				"Tax optimization tips",
				"Healthcare cost planning",
				"Priority response time",
			},
		},
		{
			ID:          "premium",
			Name:        "Premium",
			Credits:     300,
			PriceCents:  7999,
			PriceID:     prices.Premium,
			Description: "For comprehensive planning",
			Features: []string{
				"300 AI conversations",
				"All Plus features",
				"Estate planning guidance",
				"Withdrawal strategies",
				"Inflation protection",
				"Legacy planning",
			},
		},
	}}
}

// List は表示順のプラン一覧を返す。
func (c *Catalog) List() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Lookup はIDでプランを検索する。
func (c *Catalog) Lookup(id string) (Tier, bool) {
	for _, t := range c.tiers {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}
