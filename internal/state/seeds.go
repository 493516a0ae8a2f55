package state

// BossSeed is the registration payload for a boss. Numeric IDs are
// assigned by the store in registration order.
type BossSeed struct {
	BossID      string  `json:"id"`
	Name        string  `json:"name"`
	MaxHealth   float64 `json:"hpMax"`
	BuyWeight   float64 `json:"buyWeight"`
	SellWeight  float64 `json:"sellWeight"`
	Twitter     string  `json:"twitter"`
	OwnerWallet string  `json:"ownerWallet,omitempty"`
	Sprites     Sprites `json:"sprites"`
}

// ApplyOwnerWallets sets the owner wallet on seeds whose slug appears in
// wallets. A trade from a boss's own wallet is an instant kill, so the
// wallets are deployment configuration, not roster data. Unknown slugs
// are ignored.
func ApplyOwnerWallets(seeds []BossSeed, wallets map[string]string) {
	for i := range seeds {
		if w, ok := wallets[seeds[i].BossID]; ok {
			seeds[i].OwnerWallet = w
		}
	}
}

// DefaultRoster returns the standard ten-boss ladder. Health roughly
// doubles per tier while buy weight shrinks and sell weight grows, so
// later bosses take less damage and heal harder.
func DefaultRoster() []BossSeed {
	return []BossSeed{
		{
			BossID: "quant-kid", Name: "Quant Kid",
			MaxHealth: 1000, BuyWeight: 0.65, SellWeight: 0.35,
			Twitter: "https://x.com/quantgz",
			Sprites: Sprites{
				Idle:    "/b1-quant-kid/quant-kid-idle.png",
				Hitting: "/b1-quant-kid/quant-kid-hitting.png",
				Healing: "/b1-quant-kid/quant-kid-healing.png",
				Dead:    "/b1-quant-kid/quant-kid-dead.png",
			},
		},
		{
			BossID: "cooker-flips", Name: "Cooker Flips",
			MaxHealth: 2000, BuyWeight: 0.6, SellWeight: 0.4,
			Twitter: "https://x.com/CookerFlips",
			Sprites: Sprites{
				Idle:    "/b2-cooker-flips/cooker-flips-idle.png",
				Hitting: "/b2-cooker-flips/cooker-flips-hitting.png",
				Healing: "/b2-cooker-flips/cooker-flips-healing.png",
				Dead:    "/b2-cooker-flips/cooker-flips-dead.png",
			},
		},
		{
			BossID: "cupsey", Name: "Cupsey",
			MaxHealth: 4000, BuyWeight: 0.58, SellWeight: 0.42,
			Twitter: "https://x.com/Cupseyy",
			Sprites: Sprites{
				Idle:    "/b3-cupsey/cupsey-idle.png",
				Hitting: "/b3-cupsey/cupsey-hitting.png",
				Healing: "/b3-cupsey/cupsey-healing.png",
				Dead:    "/b3-cupsey/cupsey-dead.png",
			},
		},
		{
			BossID: "orangie", Name: "Orangie",
			MaxHealth: 8000, BuyWeight: 0.55, SellWeight: 0.45,
			Twitter: "https://x.com/orangie",
			Sprites: Sprites{
				Idle:    "/b4-orangie/orangie-idle.png",
				Hitting: "/b4-orangie/orangie-hitting.png",
				Healing: "/b4-orangie/orangie-healing.png",
				Dead:    "/b4-orangie/orangie-dead.png",
			},
		},
		{
			BossID: "ninety", Name: "Ninety",
			MaxHealth: 16000, BuyWeight: 0.52, SellWeight: 0.48,
			Twitter: "https://x.com/98sThoughts",
			Sprites: Sprites{
				Idle:    "/b5-ninety/b5-ninety-ghost/ninety-idle.png",
				Hitting: "/b5-ninety/b5-ninety-ghost/ninety-hitting.png",
				Healing: "/b5-ninety/b5-ninety-ghost/ninety-healing.png",
				Dead:    "/b5-ninety/b5-ninety-ghost/ninety-dead.png",
			},
		},
		{
			BossID: "threadguy", Name: "Threadguy",
			MaxHealth: 35000, BuyWeight: 0.5, SellWeight: 0.5,
			Twitter: "https://x.com/notthreadguy",
			Sprites: Sprites{
				Idle:    "/b6-threadguy/threadguy-idle.png",
				Hitting: "/b6-threadguy/threadguy-hitting.png",
				Healing: "/b6-threadguy/threadguy-healing.png",
				Dead:    "/b6-threadguy/threadguy-dead.png",
			},
		},
		{
			BossID: "frankdegods", Name: "Frankdegods",
			MaxHealth: 80000, BuyWeight: 0.48, SellWeight: 0.55,
			Twitter: "https://x.com/frankdegods",
			Sprites: Sprites{
				Idle:    "/b7-frankdegods/frankdegods-idle.png",
				Hitting: "/b7-frankdegods/frankdegods-hitting.png",
				Healing: "/b7-frankdegods/frankdegods-healing.png",
				Dead:    "/b7-frankdegods/frankdegods-dead.png",
			},
		},
		{
			BossID: "alon", Name: "Alon",
			MaxHealth: 200000, BuyWeight: 0.47, SellWeight: 0.6,
			Twitter: "https://x.com/HsakaTrades",
			Sprites: Sprites{
				Idle:    "/b8-alon/alon-idle.png",
				Hitting: "/b8-alon/alon-hitting.png",
				Healing: "/b8-alon/alon-healing.png",
				Dead:    "/b8-alon/alon-dead.png",
			},
		},
		{
			BossID: "hsaka", Name: "Hsaka",
			MaxHealth: 350000, BuyWeight: 0.46, SellWeight: 0.65,
			Twitter: "https://x.com/a1lon9",
			Sprites: Sprites{
				Idle:    "/b8-hsaka/hsaka-idle.png",
				Hitting: "/b8-hsaka/hsaka-hitting.png",
				Healing: "/b8-hsaka/hsaka-healing.png",
				Dead:    "/b8-hsaka/hsaka-dead.png",
			},
		},
		{
			BossID: "toly-wizard", Name: "Toly The Wizard",
			MaxHealth: 500000, BuyWeight: 0.45, SellWeight: 0.7,
			Twitter: "https://x.com/toly",
			Sprites: Sprites{
				Idle:    "/b9-toly-wizard/toly-wizard-idle.png",
				Hitting: "/b9-toly-wizard/toly-wizard-hitting.png",
				Healing: "/b9-toly-wizard/toly-wizard-healing.png",
				Dead:    "/b9-toly-wizard/toly-wizard-dead.png",
			},
		},
	}
}
