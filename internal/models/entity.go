package models

import "time"

// Role is the positional category an entity plays in.
type Role string

const (
	RoleGoalkeeper Role = "GKP"
	RoleDefender   Role = "DEF"
	RoleMidfielder Role = "MID"
	RoleForward    Role = "FWD"
)

// Roles lists every role in display order.
var Roles = []Role{RoleGoalkeeper, RoleDefender, RoleMidfielder, RoleForward}

// Rank orders roles for display: GKP, DEF, MID, FWD.
func (r Role) Rank() int {
	switch r {
	case RoleGoalkeeper:
		return 0
	case RoleDefender:
		return 1
	case RoleMidfielder:
		return 2
	case RoleForward:
		return 3
	default:
		return 4
	}
}

func (r Role) Valid() bool {
	return r.Rank() < 4
}

// Availability mirrors the upstream status codes.
type Availability string

const (
	StatusAvailable    Availability = "a"
	StatusDoubtful     Availability = "d"
	StatusInjured      Availability = "i"
	StatusNotAvailable Availability = "n"
	StatusSuspended    Availability = "s"
	StatusUnavailable  Availability = "u"
)

// Excluded reports whether the status keeps an entity out of selection.
func (a Availability) Excluded() bool {
	switch a {
	case StatusInjured, StatusNotAvailable, StatusSuspended, StatusUnavailable:
		return true
	}
	return false
}

type Team struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name                string `gorm:"not null" json:"name"`
	ShortName           string `json:"short_name"`
	StrengthAttackHome  *int   `json:"strength_attack_home,omitempty"`
	StrengthAttackAway  *int   `json:"strength_attack_away,omitempty"`
	StrengthDefenceHome *int   `json:"strength_defence_home,omitempty"`
	StrengthDefenceAway *int   `json:"strength_defence_away,omitempty"`
}

func (Team) TableName() string {
	return "teams"
}

// Entity is a selectable participant.
type Entity struct {
	ID              uint         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TeamID          uint         `gorm:"index;not null" json:"team_id"`
	WebName         string       `json:"web_name"`
	Role            Role         `gorm:"type:varchar(3);index;not null" json:"role"`
	Status          Availability `gorm:"type:varchar(1);default:a" json:"status"`
	ChanceOfPlaying *int         `json:"chance_of_playing,omitempty"`
	IsPenaltyTaker  bool         `gorm:"default:false" json:"is_penalty_taker"`
	IsCornerTaker   bool         `gorm:"default:false" json:"is_corner_taker"`
	IsFreekickTaker bool         `gorm:"default:false" json:"is_freekick_taker"`
	NowCost         *int         `json:"now_cost,omitempty"`
}

func (Entity) TableName() string {
	return "entities"
}

// Eligible reports whether the entity may be scored and selected.
func (e Entity) Eligible() bool {
	if e.Status.Excluded() {
		return false
	}
	if e.ChanceOfPlaying != nil && *e.ChanceOfPlaying == 0 {
		return false
	}
	return true
}

// Period is one round of the competition, identified by its number.
type Period struct {
	ID        int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string     `json:"name"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Finished  bool       `gorm:"default:false;index" json:"finished"`
	IsCurrent bool       `gorm:"default:false" json:"is_current"`
	IsNext    bool       `gorm:"default:false" json:"is_next"`
}

func (Period) TableName() string {
	return "periods"
}

// ObservationRecord holds one entity's realized statistics for one period.
type ObservationRecord struct {
	ID              uint     `gorm:"primaryKey" json:"-"`
	EntityID        uint     `gorm:"uniqueIndex:idx_observation_entity_period;not null" json:"entity_id"`
	Period          int      `gorm:"uniqueIndex:idx_observation_entity_period;index;not null" json:"period"`
	Minutes         int      `json:"minutes"`
	Goals           int      `json:"goals"`
	Assists         int      `json:"assists"`
	CleanSheets     int      `json:"clean_sheets"`
	GoalsConceded   int      `json:"goals_conceded"`
	Saves           int      `json:"saves"`
	Bonus           int      `json:"bonus"`
	BPS             int      `json:"bps"`
	TotalPoints     int      `json:"total_points"`
	Shots           int      `json:"shots"`
	KeyPasses       int      `json:"key_passes"`
	ExpectedGoals   *float64 `json:"xg,omitempty"`
	ExpectedAssists *float64 `json:"xa,omitempty"`
}

func (ObservationRecord) TableName() string {
	return "observations"
}

// ExpectedStatsUpdate carries externally sourced xG/xA for one (entity, period).
type ExpectedStatsUpdate struct {
	EntityID        uint    `json:"entity_id"`
	Period          int     `json:"period"`
	ExpectedGoals   float64 `json:"xg"`
	ExpectedAssists float64 `json:"xa"`
}

type Fixture struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	Period         int  `gorm:"index;not null" json:"period"`
	HomeTeamID     uint `gorm:"not null" json:"home_team_id"`
	AwayTeamID     uint `gorm:"not null" json:"away_team_id"`
	HomeDifficulty *int `json:"home_difficulty,omitempty"`
	AwayDifficulty *int `json:"away_difficulty,omitempty"`
	Finished       bool `gorm:"default:false" json:"finished"`
}

func (Fixture) TableName() string {
	return "fixtures"
}

// GroundTruthEntry is one member of a period's realized optimal lineup.
type GroundTruthEntry struct {
	ID       uint `gorm:"primaryKey" json:"-"`
	Period   int  `gorm:"uniqueIndex:idx_ground_truth_period_entity;not null" json:"period"`
	EntityID uint `gorm:"uniqueIndex:idx_ground_truth_period_entity;not null" json:"entity_id"`
	Slot     int  `json:"slot"`
	Points   int  `json:"points"`
}

func (GroundTruthEntry) TableName() string {
	return "ground_truth_entries"
}

// ScoredEntity pairs an entity with its predicted score for a target period.
type ScoredEntity struct {
	Entity Entity  `json:"entity"`
	Score  float64 `json:"score"`
}
