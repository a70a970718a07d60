// Package policy implements app categorization and usage-threshold
// resolution. Seed data lives here as plain immutable tables; persisted
// user overrides always win over them.
package policy

import (
	"time"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// categoryMembers lists built-in app identifiers per category. Categorize
// checks these groups in a fixed order, so the slice order below matters
// when an identifier appears in more than one group (it must not).
var categoryOrder = []domain.Category{
	domain.CategorySocialMedia,
	domain.CategoryEntertainment,
	domain.CategoryGames,
	domain.CategoryCommunication,
	domain.CategoryProductivity,
}

var categoryMembers = map[domain.Category][]string{
	domain.CategorySocialMedia: {
		"com.instagram.android",
		"com.twitter.android",
		"com.zhiliaoapp.musically", // TikTok
		"com.facebook.katana",
		"com.snapchat.android",
		"com.reddit.frontpage",
		"com.pinterest",
		"com.linkedin.android",
	},
	domain.CategoryEntertainment: {
		"com.google.android.youtube",
		"com.netflix.mediaclient",
		"com.amazon.avod.thirdpartyclient",
		"com.disney.disneyplus",
		"tv.twitch.android.app",
		"com.spotify.music",
		"com.hulu.plus",
	},
	domain.CategoryGames: {
		"com.supercell.clashofclans",
		"com.supercell.brawlstars",
		"com.mojang.minecraftpe",
		"com.roblox.client",
		"com.epicgames.fortnite",
		"com.king.candycrushsaga",
		"com.miHoYo.GenshinImpact",
	},
	domain.CategoryCommunication: {
		"com.whatsapp",
		"org.telegram.messenger",
		"com.discord",
		"com.facebook.orca",
		"com.google.android.apps.messaging",
		"org.thoughtcrime.securesms",
	},
	domain.CategoryProductivity: {
		"com.google.android.gm",
		"com.google.android.calendar",
		"com.microsoft.office.outlook",
		"com.todoist",
		"md.obsidian",
		"com.notion.id",
	},
}

// defaultThresholds holds the per-category default usage limit. An app in
// a category without an entry falls back to the UNKNOWN default.
var defaultThresholds = map[domain.Category]time.Duration{
	domain.CategorySocialMedia:   30 * time.Minute,
	domain.CategoryEntertainment: 45 * time.Minute,
	domain.CategoryGames:         30 * time.Minute,
	domain.CategoryCommunication: 60 * time.Minute,
	domain.CategoryProductivity:  domain.NoLimit,
	domain.CategoryAdult:         15 * time.Minute,
	domain.CategoryUnknown:       60 * time.Minute,
}

// DefaultThreshold returns the built-in default limit for a category,
// falling back to the UNKNOWN default for unconfigured categories.
func DefaultThreshold(c domain.Category) time.Duration {
	if d, ok := defaultThresholds[c]; ok {
		return d
	}
	return defaultThresholds[domain.CategoryUnknown]
}

// seedCategory returns the built-in category for an app identifier by
// checking the fixed category groups in order, or UNKNOWN.
func seedCategory(appID string) domain.Category {
	for _, cat := range categoryOrder {
		for _, id := range categoryMembers[cat] {
			if id == appID {
				return cat
			}
		}
	}
	return domain.CategoryUnknown
}

// SeedMappings returns SYSTEM mappings for every built-in app. Callers
// persist these with insert-if-absent only, so existing mappings are
// never overwritten.
func SeedMappings(now time.Time) []domain.AppCategoryMapping {
	var out []domain.AppCategoryMapping
	for _, cat := range categoryOrder {
		for _, id := range categoryMembers[cat] {
			out = append(out, domain.AppCategoryMapping{
				AppID:     id,
				Category:  cat,
				Source:    domain.SourceSystem,
				UpdatedAt: now,
			})
		}
	}
	return out
}

// DefaultBlocklist is the built-in member list of the sensitive category,
// used to seed the encrypted blocklist file on first access.
func DefaultBlocklist() []string {
	return []string{
		"com.example.adultsite.app",
		"org.xvideos.app",
		"com.pornhub.android",
		"com.onlyfans.android",
		"com.chaturbate.android",
	}
}
