package tarot

// Card is one card of the fixed deck.
type Card struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Upright  string `json:"-"`
	Reversed string `json:"-"`
}

// Deck is the fixed set of cards a reading can resolve to.
type Deck []Card

// MajorArcana is the default deck: the 22 major arcana.
var MajorArcana = Deck{
	{0, "The Fool", "A fresh start. Step forward lightly and trust the road to teach you.", "Recklessness is close. Look once more before you leap."},
	{1, "The Magician", "You already hold the tools you need. Put them to use today.", "Scattered effort. Pick one thing and finish it."},
	{2, "The High Priestess", "Quiet insight. The answer is in what you already sense.", "You are ignoring your intuition. Slow down and listen."},
	{3, "The Empress", "Abundance and care. Nurture what you have started.", "Giving too much leaves you empty. Tend to yourself first."},
	{4, "The Emperor", "Structure brings results. Set the rules and keep them.", "Rigidity is getting in the way. Loosen your grip."},
	{5, "The Hierophant", "Learn from tradition and those who came before.", "A convention no longer fits. It is fine to do it your way."},
	{6, "The Lovers", "A meaningful choice or connection. Follow your values.", "Misalignment. Check whether your choices match what you want."},
	{7, "The Chariot", "Momentum is on your side. Drive with focus.", "Pulling in two directions. Decide where you are going."},
	{8, "Strength", "Gentle courage wins. Patience tames the situation.", "Self-doubt is louder than it deserves to be."},
	{9, "The Hermit", "Time alone brings clarity. Step back and reflect.", "Isolation has gone on too long. Reach out to someone."},
	{10, "Wheel of Fortune", "The tide is turning in your favor. Ride the change.", "A setback that will pass. Do not fight the current."},
	{11, "Justice", "Fairness and clear judgment. Own your decisions.", "Something feels unbalanced. Be honest about your part in it."},
	{12, "The Hanged Man", "A pause reveals a new perspective. Let go for now.", "Stalling without purpose. It is time to move."},
	{13, "Death", "An ending that makes room for something new.", "Holding on to what is already over. Release it."},
	{14, "Temperance", "Balance and moderation. Blend opposites with patience.", "Excess in one area. Restore your rhythm."},
	{15, "The Devil", "Notice what binds you. Awareness is the first step to freedom.", "A chain is loosening. You are ready to break a habit."},
	{16, "The Tower", "Sudden change clears away what was unstable.", "You are avoiding a necessary upheaval. Face it gently."},
	{17, "The Star", "Hope and renewal. Your direction is sound.", "Faith is running low. Small wins will restore it."},
	{18, "The Moon", "Things are not as they seem. Move carefully through uncertainty.", "The fog is lifting. Confusion gives way to understanding."},
	{19, "The Sun", "Joy and success. Let yourself shine.", "Brightness is dimmed, not gone. Find the small pleasures."},
	{20, "Judgement", "A calling. Reflect, forgive, and rise to the next stage.", "Self-criticism holds you back. Judge yourself more kindly."},
	{21, "The World", "Completion and fulfillment. Celebrate how far you have come.", "Almost there. Tie up the loose ends."},
}

// Find returns the card with the given id.
func (d Deck) Find(id int) (Card, bool) {
	for _, c := range d {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// Interpretation returns the reading text for a card in the given
// orientation. It is a pure lookup: the same pair always yields the same
// text, which keeps history re-display stable.
func Interpretation(c Card, reversed bool) string {
	if reversed {
		return c.Reversed
	}
	return c.Upright
}
