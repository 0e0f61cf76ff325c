package features

import "fmt"

// Column identifies a feature that does not depend on a rolling window.
type Column int

const (
	IsGoalkeeper Column = iota
	IsDefender
	IsMidfielder
	IsForward
	IsPenaltyTaker
	IsSetPieceTaker
	NowCost
	ChanceOfPlaying
	IsHome
	FixtureDifficulty
	OpponentAttackStrength
	OpponentDefenceStrength
	TeamAttackStrength
	TeamDefenceStrength
	GamesPlayed
	numStaticColumns
)

var staticNames = [numStaticColumns]string{
	"is_gkp",
	"is_def",
	"is_mid",
	"is_fwd",
	"is_penalty_taker",
	"is_set_piece_taker",
	"now_cost",
	"chance_of_playing",
	"is_home",
	"fixture_difficulty",
	"opponent_attack_strength",
	"opponent_defence_strength",
	"team_attack_strength",
	"team_defence_strength",
	"games_played",
}

func (c Column) String() string {
	if c < 0 || c >= numStaticColumns {
		return fmt.Sprintf("column(%d)", int(c))
	}
	return staticNames[c]
}

// WindowStat identifies an aggregate computed once per rolling window.
type WindowStat int

const (
	PointsMean WindowStat = iota
	PointsSum
	PointsStd
	MinutesMean
	Starts
	GoalsSum
	AssistsSum
	GoalInvolvementSum
	CleanSheetsSum
	BonusSum
	BPSMean
	XGSum
	XASum
	XGISum
	GoalOverperformance
	Involvement
	numWindowStats
)

var windowStatNames = [numWindowStats]string{
	"points_mean",
	"points_sum",
	"points_std",
	"minutes_mean",
	"starts",
	"goals_sum",
	"assists_sum",
	"ga_sum",
	"cs_sum",
	"bonus_sum",
	"bps_mean",
	"xg_sum",
	"xa_sum",
	"xga_sum",
	"goal_overperformance",
	"involvement",
}

func (w WindowStat) String() string {
	if w < 0 || w >= numWindowStats {
		return fmt.Sprintf("stat(%d)", int(w))
	}
	return windowStatNames[w]
}

// Schema is the fixed column order of every feature row. Static columns come
// first, followed by one block of window statistics per configured window.
type Schema struct {
	windows []int
	names   []string
	index   map[string]int
}

func NewSchema(windows []int) *Schema {
	s := &Schema{
		windows: append([]int(nil), windows...),
		names:   make([]string, 0, int(numStaticColumns)+len(windows)*int(numWindowStats)),
		index:   make(map[string]int),
	}
	for c := Column(0); c < numStaticColumns; c++ {
		s.names = append(s.names, c.String())
	}
	for _, w := range windows {
		for st := WindowStat(0); st < numWindowStats; st++ {
			s.names = append(s.names, fmt.Sprintf("%s_%d", st, w))
		}
	}
	for i, n := range s.names {
		s.index[n] = i
	}
	return s
}

// Width is the number of columns in a row.
func (s *Schema) Width() int {
	return len(s.names)
}

func (s *Schema) Names() []string {
	return s.names
}

func (s *Schema) Windows() []int {
	return s.windows
}

// Name returns the column name at position i.
func (s *Schema) Name(i int) string {
	return s.names[i]
}

func (s *Schema) Lookup(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Static returns the position of a static column.
func (s *Schema) Static(c Column) int {
	return int(c)
}

// Window returns the position of a statistic for the slot-th configured window.
func (s *Schema) Window(stat WindowStat, slot int) int {
	return int(numStaticColumns) + slot*int(numWindowStats) + int(stat)
}

// DefaultLearnedFeatures is every column except the price proxy.
func (s *Schema) DefaultLearnedFeatures() []string {
	out := make([]string, 0, len(s.names)-1)
	for _, n := range s.names {
		if n == NowCost.String() {
			continue
		}
		out = append(out, n)
	}
	return out
}
