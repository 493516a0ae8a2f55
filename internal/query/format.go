package query

import (
	"fmt"
)

// ShortAddress abbreviates a wallet address for display: first four and
// last four characters. Addresses at or below eight characters are
// returned unchanged.
func ShortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

// FormatAmount renders a damage or SOL figure compactly: 1.2M, 45.3K,
// or two decimals below a thousand.
func FormatAmount(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// RankLabel renders a leaderboard position, medals for the podium.
func RankLabel(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("#%d", rank)
	}
}
