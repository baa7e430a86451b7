package utils

import (
	"strings"
	"testing"
	"time"

	"tg-collector-bot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCoinsWord(t *testing.T) {
	cases := map[int64]string{
		1:   "монета",
		2:   "монеты",
		4:   "монеты",
		5:   "монет",
		11:  "монет",
		12:  "монет",
		14:  "монет",
		21:  "монета",
		22:  "монеты",
		25:  "монет",
		100: "монет",
		101: "монета",
		111: "монет",
	}
	for count, want := range cases {
		assert.Equal(t, want, CoinsWord(count), "count=%d", count)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45с", FormatDuration(45*time.Second))
	assert.Equal(t, "2м 30с", FormatDuration(2*time.Minute+30*time.Second))
	assert.Equal(t, "3ч 15м", FormatDuration(3*time.Hour+15*time.Minute))
}

func TestFormatCollectionEmpty(t *testing.T) {
	out := FormatCollection(&models.UserRecord{})
	assert.Contains(t, out, "пуста")
}

func TestFormatCollectionGroupsDuplicates(t *testing.T) {
	rem := models.CharacterInstance{CharacterID: 7, Name: "Рем", Anime: "Re:Zero", Rarity: models.RarityRare}
	asuka := models.CharacterInstance{CharacterID: 3, Name: "Аска", Anime: "Evangelion", Rarity: models.RarityLegendary}
	user := &models.UserRecord{Characters: []models.CharacterInstance{rem, asuka, rem}}

	out := FormatCollection(user)
	assert.Contains(t, out, "(3)")
	assert.Contains(t, out, "Рем")
	assert.Contains(t, out, "×2")
	assert.Equal(t, 1, strings.Count(out, "Рем"), "дубликаты схлопнуты в одну строку")
}

func TestFormatCollectionFavoritesFirst(t *testing.T) {
	rem := models.CharacterInstance{CharacterID: 7, Name: "Рем", Anime: "Re:Zero", Rarity: models.RarityRare}
	asuka := models.CharacterInstance{CharacterID: 3, Name: "Аска", Anime: "Evangelion", Rarity: models.RarityCommon}
	user := &models.UserRecord{
		Characters: []models.CharacterInstance{rem, asuka},
		Favorites:  []int64{3},
	}

	out := FormatCollection(user)
	assert.Less(t, strings.Index(out, "Аска"), strings.Index(out, "Рем"), "избранное поднято наверх")
	assert.Contains(t, out, "❤️")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@rem", DisplayName("rem", 42))
	assert.Equal(t, "id42", DisplayName("", 42))
}
