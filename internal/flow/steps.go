package flow

import "github.com/heykaelo/heykaelo-backend/internal/models"

// Onboarding step ids. The root step classifies the owner's work style; each
// branch then runs a short linear questionnaire ending in a finalize marker.
const (
	stepRoot = "root"

	stepProName = "pro_name"
	stepProType = "pro_type"
	stepProDays = "pro_days"

	stepTradeName = "trade_name"
	stepTradeType = "trade_type"
	stepTradeArea = "trade_area"

	stepHybridName = "hybrid_name"
	stepHybridType = "hybrid_type"
	stepHybridArea = "hybrid_area"
)

// Onboarding data bag field names.
const (
	fieldBusinessName = "business_name"
	fieldRoleType     = "role_type"
	fieldWorkingDays  = "working_days"
	fieldServiceArea  = "service_area"
)

// rootPrompt is re-sent unchanged for any input the root table cannot map.
const rootPrompt = "Welcome to HeyKaelo! Let's set up your business. How do you work?\n\n" +
	"1. From a fixed location (clients come to me)\n" +
	"2. I travel to my clients\n" +
	"3. Both"

// rootChoices maps normalized root input to a branch key. Unmapped input
// re-prompts without advancing.
var rootChoices = map[string]models.RoleCategory{
	"1":      models.RoleProfessional,
	"fixed":  models.RoleProfessional,
	"2":      models.RoleTradesperson,
	"mobile": models.RoleTradesperson,
	"3":      models.RoleHybrid,
	"both":   models.RoleHybrid,
	"mixed":  models.RoleHybrid,
}

// onboardingStep is one question in a branch: its id, the prompt sent to the
// owner, and the data bag field its answer populates.
type onboardingStep struct {
	id        string
	prompt    string
	saveField string
}

// onboardingBranch is an ordered questionnaire for one role category. The
// intro is folded into the first question's outbound message and never
// persisted as a step of its own; after the last step the flow finalizes.
type onboardingBranch struct {
	category models.RoleCategory
	intro    string
	steps    []onboardingStep
	closing  string
}

var onboardingBranches = []onboardingBranch{
	{
		category: models.RoleProfessional,
		intro:    "Great - a fixed-location practice. A few quick questions and you'll be taking bookings.",
		steps: []onboardingStep{
			{id: stepProName, prompt: "What is the name of your business?", saveField: fieldBusinessName},
			{id: stepProType, prompt: "What kind of professional are you? (e.g. doctor, dentist, physio, hairdresser)", saveField: fieldRoleType},
			{id: stepProDays, prompt: "Which days do you usually work? (e.g. Mon-Fri, or Tue-Sat)", saveField: fieldWorkingDays},
		},
		closing: "You're all set! Your booking page is live and I'll forward appointment requests straight to this number. New bookings go into your calendar automatically once you confirm them.",
	},
	{
		category: models.RoleTradesperson,
		intro:    "Got it - you go to your clients. A few quick questions and you'll be taking call-out requests.",
		steps: []onboardingStep{
			{id: stepTradeName, prompt: "What is the name of your business?", saveField: fieldBusinessName},
			{id: stepTradeType, prompt: "What trade do you do? (e.g. plumber, electrician, garden service)", saveField: fieldRoleType},
			{id: stepTradeArea, prompt: "Which areas do you service? (e.g. northern suburbs, city centre)", saveField: fieldServiceArea},
		},
		closing: "You're all set! I'll collect job requests from your customers and send each one here for you to approve before anything is confirmed.",
	},
	{
		category: models.RoleHybrid,
		intro:    "Nice - a mix of both. A few quick questions and you'll be taking bookings either way.",
		steps: []onboardingStep{
			{id: stepHybridName, prompt: "What is the name of your business?", saveField: fieldBusinessName},
			{id: stepHybridType, prompt: "What kind of work do you do?", saveField: fieldRoleType},
			{id: stepHybridArea, prompt: "Which areas do you cover for call-outs?", saveField: fieldServiceArea},
		},
		closing: "You're all set! Customers can book a visit or request a call-out, and I'll send every request here for you to approve first.",
	},
}

// findOnboardingStep locates a step id across all branches. Returns the owning
// branch, the step index within it, and whether the id was found.
func findOnboardingStep(id string) (*onboardingBranch, int, bool) {
	for i := range onboardingBranches {
		for j := range onboardingBranches[i].steps {
			if onboardingBranches[i].steps[j].id == id {
				return &onboardingBranches[i], j, true
			}
		}
	}
	return nil, 0, false
}

// Registration step ids. A fixed linear sequence terminating in RegStepDone.
const (
	RegStepName    = "REG_NAME"
	RegStepID      = "REG_ID"
	RegStepMedical = "REG_MEDICAL"
	RegStepConsent = "REG_CONSENT"
	RegStepDone    = "REG_DONE"
)

// Registration data bag field names. pendingAnswerField holds the raw message
// from the previous turn until the engine knows which step it answered.
const (
	fieldFullName     = "full_name"
	fieldIDNumber     = "id_number"
	fieldMedicalAid   = "medical_aid"
	fieldSignatureURL = "signature_url"

	pendingAnswerField = "_pending"
)

// registrationStep is one question in the intake sequence.
type registrationStep struct {
	id        string
	prompt    string
	saveField string
	next      string
}

var registrationSteps = []registrationStep{
	{id: RegStepName, prompt: "To get you registered, what is your full name?", saveField: fieldFullName, next: RegStepID},
	{id: RegStepID, prompt: "Thanks! What is your ID number?", saveField: fieldIDNumber, next: RegStepMedical},
	{id: RegStepMedical, prompt: "Do you have medical aid? If so, which scheme and plan?", saveField: fieldMedicalAid, next: RegStepConsent},
	{id: RegStepConsent, prompt: "Last step: please send a photo of your signed consent form.", saveField: fieldSignatureURL, next: RegStepDone},
}

// registrationCompleteMessage closes the intake sequence.
const registrationCompleteMessage = "That's everything - you're registered! We look forward to seeing you at your appointment."

// registrationPhotoPrompt is the re-prompt when the consent step gets text
// instead of an image.
const registrationPhotoPrompt = "I still need a photo of your signed consent form to finish up. Please send it as an image."

// findRegistrationStep returns the step descriptor for an id, if recognized.
func findRegistrationStep(id string) (*registrationStep, bool) {
	for i := range registrationSteps {
		if registrationSteps[i].id == id {
			return &registrationSteps[i], true
		}
	}
	return nil, false
}
