package domain

const (
	DeckFibonacci         = "fibonacci"
	DeckModifiedFibonacci = "modified-fibonacci"
	DeckTShirt            = "t-shirt"
	DeckPowersOfTwo       = "powers-of-two"
)

// DefaultDecks is installed into every new room. Catalog management lives
// outside this service.
func DefaultDecks() []Deck {
	return []Deck{
		{
			DeckID:     DeckFibonacci,
			DeckName:   "Fibonacci",
			DeckValues: []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "☕"},
			IsDefault:  true,
		},
		{
			DeckID:     DeckModifiedFibonacci,
			DeckName:   "Modified Fibonacci",
			DeckValues: []string{"0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100", "?", "☕"},
		},
		{
			DeckID:     DeckTShirt,
			DeckName:   "T-shirt",
			DeckValues: []string{"XS", "S", "M", "L", "XL", "XXL", "?", "☕"},
		},
		{
			DeckID:     DeckPowersOfTwo,
			DeckName:   "Powers of 2",
			DeckValues: []string{"0", "1", "2", "4", "8", "16", "32", "64", "?", "☕"},
		},
	}
}

func DefaultOptions() RoomOptions {
	return RoomOptions{
		ShowAverage: true,
		EstimateOption: EstimateOption{
			Decks:        DefaultDecks(),
			ActiveDeckID: DeckFibonacci,
		},
	}
}
