package gamify

import "github.com/dxia/starshipplan/internal/model"

// ExpPerLevel is the fixed experience threshold for every level. Changing it
// is a versioned policy change, never a silent edit.
const ExpPerLevel = 100

// rankTitles maps level thresholds to rank names, lowest first. A level
// resolves to the highest threshold at or below it.
var rankTitles = []struct {
	minLevel int
	title    string
}{
	{1, "见习宇航员"},
	{5, "初级宇航员"},
	{10, "宇航员"},
	{15, "高级宇航员"},
	{20, "飞行指令长"},
	{30, "星舰舰长"},
}

// TitleForLevel returns the rank title for a level. Levels below 1 are
// treated as 1.
func TitleForLevel(level int) string {
	title := rankTitles[0].title
	for _, r := range rankTitles {
		if level >= r.minLevel {
			title = r.title
		}
	}
	return title
}

// AdvanceLevel applies earned experience to a level record and returns the
// updated record plus whether the level increased. Negative deltas are
// ignored: punishments touch the coin ledger only, progression never moves
// backwards.
func AdvanceLevel(rec model.LevelRecord, deltaExp int) (model.LevelRecord, bool) {
	if deltaExp <= 0 {
		return rec, false
	}

	rec.TotalExp += deltaExp
	gained := (rec.Exp + deltaExp) / ExpPerLevel
	rec.Exp = (rec.Exp + deltaExp) % ExpPerLevel
	rec.Level += gained
	rec.Title = TitleForLevel(rec.Level)

	return rec, gained > 0
}

// NewLevelRecord returns the starting progression row for a freshly created
// user.
func NewLevelRecord(userID int64, shipName string) model.LevelRecord {
	return model.LevelRecord{
		UserID:   userID,
		Level:    1,
		Title:    TitleForLevel(1),
		Exp:      0,
		TotalExp: 0,
		ShipName: shipName,
	}
}
