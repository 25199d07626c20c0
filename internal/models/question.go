package models

// Clue is one hint toward the round's secret answer. Number runs from 10
// (most oblique) down to 1 (dead giveaway); clues are revealed in that order.
type Clue struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// RoundQuestion is the secret answer plus its ten ordered clues for one round.
type RoundQuestion struct {
	Answer string `json:"answer"`
	Clues  []Clue `json:"clues"`
	// Obscurity is the oracle's 0-10 estimate of how well-known the answer
	// is (0 = universal, 10 = very obscure). Feeds picker scoring.
	Obscurity int `json:"obscurity"`
	// PickedBy is set in custom mode only.
	PickedBy *PlayerRef `json:"pickedBy,omitempty"`
}
