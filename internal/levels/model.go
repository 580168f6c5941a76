package levels

// CodeBundle is an {html, css, js} string triple. Bundles are treated as
// values: a new bundle value triggers a new render push.
type CodeBundle struct {
	HTML string `yaml:"html" json:"html"`
	CSS  string `yaml:"css" json:"css"`
	JS   string `yaml:"js" json:"js"`
}

// Equal compares bundles by value, not by reference.
func (b CodeBundle) Equal(other CodeBundle) bool {
	return b.HTML == other.HTML && b.CSS == other.CSS && b.JS == other.JS
}

// IsEmpty reports whether the bundle carries no code at all.
func (b CodeBundle) IsEmpty() bool {
	return b.HTML == "" && b.CSS == "" && b.JS == ""
}

// Dimensions is the viewport size of a scenario.
type Dimensions struct {
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	Unit   string `yaml:"unit" json:"unit"`
}

// Scenario is one visual target within a level. The ID is stable across
// dimension edits.
type Scenario struct {
	ID         string     `yaml:"id" json:"scenarioId"`
	Dimensions Dimensions `yaml:"dimensions" json:"dimensions"`
	JS         string     `yaml:"js" json:"js,omitempty"`
}

// Threshold maps an accuracy milestone to a percentage of max points.
type Threshold struct {
	Accuracy      float64 `yaml:"accuracy" json:"accuracy"`
	PointsPercent float64 `yaml:"points_percent" json:"pointsPercent"`
}

// Level owns a set of scenarios, the reference solution and the scoring
// table.
type Level struct {
	Name       string      `yaml:"name" json:"name"`
	Title      string      `yaml:"title" json:"title,omitempty"`
	MaxPoints  float64     `yaml:"max_points" json:"maxPoints"`
	Thresholds []Threshold `yaml:"thresholds" json:"thresholds"`
	Scenarios  []Scenario  `yaml:"scenarios" json:"scenarios"`
	Reference  CodeBundle  `yaml:"reference" json:"-"`
	Events     []string    `yaml:"events" json:"events,omitempty"`
}

// ScenarioIDs returns the ids of all scenarios in the level.
func (l *Level) ScenarioIDs() []string {
	ids := make([]string, 0, len(l.Scenarios))
	for _, sc := range l.Scenarios {
		ids = append(ids, sc.ID)
	}
	return ids
}

// Scenario returns the scenario with the given id, or nil.
func (l *Level) Scenario(id string) *Scenario {
	for i := range l.Scenarios {
		if l.Scenarios[i].ID == id {
			return &l.Scenarios[i]
		}
	}
	return nil
}
