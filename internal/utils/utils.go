package utils

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tg-collector-bot/internal/models"
)

// CoinsWord возвращает правильное склонение слова "монета".
func CoinsWord(count int64) string {
	lastDigit := count % 10
	lastTwoDigits := count % 100

	// Исключения для чисел 11-14
	if lastTwoDigits >= 11 && lastTwoDigits <= 14 {
		return "монет"
	}

	switch lastDigit {
	case 1:
		return "монета"
	case 2, 3, 4:
		return "монеты"
	default:
		return "монет"
	}
}

// FormatDuration форматирует длительность для сообщений о кулдаунах.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%dс", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dм %dс", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dч %dм", int(d.Hours()), int(d.Minutes())%60)
}

// FormatCharacter — одна строка карточки персонажа.
func FormatCharacter(def *models.CharacterDefinition) string {
	return fmt.Sprintf("%s %s — %s (id %d)", def.Rarity.Emoji(), def.Name, def.Anime, def.ID)
}

// collectionRow — сгруппированная строка коллекции.
type collectionRow struct {
	inst  models.CharacterInstance
	count int
	fav   bool
}

// FormatCollection группирует массив персонажей по id с количеством копий
// и отметками избранного.
func FormatCollection(user *models.UserRecord) string {
	if len(user.Characters) == 0 {
		return "📦 Коллекция пуста"
	}

	favs := make(map[int64]bool, len(user.Favorites))
	for _, id := range user.Favorites {
		favs[id] = true
	}

	rows := make(map[int64]*collectionRow)
	order := make([]int64, 0)
	for _, inst := range user.Characters {
		row, ok := rows[inst.CharacterID]
		if !ok {
			row = &collectionRow{inst: inst, fav: favs[inst.CharacterID]}
			rows[inst.CharacterID] = row
			order = append(order, inst.CharacterID)
		}
		row.count++
	}

	// Избранные наверх, дальше порядок получения.
	sort.SliceStable(order, func(i, j int) bool {
		return rows[order[i]].fav && !rows[order[j]].fav
	})

	var b strings.Builder
	fmt.Fprintf(&b, "🎴 Коллекция (%d):\n\n", len(user.Characters))
	for _, id := range order {
		row := rows[id]
		if row.fav {
			b.WriteString("❤️ ")
		}
		fmt.Fprintf(&b, "%s %s — %s (id %d)", row.inst.Rarity.Emoji(), row.inst.Name, row.inst.Anime, id)
		if row.count > 1 {
			fmt.Fprintf(&b, " ×%d", row.count)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DisplayName возвращает имя пользователя для сообщений.
func DisplayName(username string, id int64) string {
	if username != "" {
		return "@" + username
	}
	return fmt.Sprintf("id%d", id)
}
