package booking

import "fmt"

// DefaultBusinessName is used when no business name is configured.
const DefaultBusinessName = "BuildABrand"

// DefaultSystemPrompt returns the receptionist persona for business.
func DefaultSystemPrompt(business string) string {
	if business == "" {
		business = DefaultBusinessName
	}
	return fmt.Sprintf(`You are a helpful AI receptionist for %[1]s.
%[1]s is a digital marketing and web development agency offering:
- Website design & development
- Mobile & web app development
- Automation services (chatbots, AI integrations)
- SEO & content marketing

For any user query about services, answer concisely (1 to 2 sentences).
If the user wants to book a meeting, guide them step by step: first ask for date and time, then ask for email, then confirm booking.
Always be brief and clear because this is happening during a phone call.`, business)
}

// Spoken and prompt strings used by the [Machine].
const (
	extractionSystemPrompt = "You extract date and start_time from text."

	dateTimeHint   = "I didn't catch the date/time. Please provide the date and start time in the format YYYY-MM-DD HH:MM."
	invalidEmail   = "I didn't get a valid email. Please spell it out again, using single letters, 'at' for @, and 'dot' for ."
	scheduleFailed = "Sorry, I encountered an error creating the event."
	generationDown = "Sorry, I'm having trouble right now."
	giveUp         = "Let's try booking again later. Just ask whenever you're ready."
	confirmHint    = "Confirm the booking to the user briefly."
)

func extractionPrompt(text string) string {
	return "Extract meeting date and start_time from the user's reply. " +
		"Respond ONLY in JSON with keys: date (YYYY-MM-DD), start_time (HH:MM in 24h). " +
		`User reply: "` + text + `"`
}

func emailPrompt(date, start string) string {
	return "Got date " + date + " at " + start +
		". Please spell your email address one letter at a time, saying 'at' for @ and 'dot' for ., " +
		"for example: d e v a n s h at g m a i l dot c o m."
}

func bookingFacts(date, start, email, link string) string {
	return fmt.Sprintf("Booking details: date %s, time %s, email %s. Event link: %s", date, start, email, link)
}

func fallbackConfirmation(date, start, email string) string {
	return fmt.Sprintf("You're booked for %s at %s. The invitation goes to %s.", date, start, email)
}
