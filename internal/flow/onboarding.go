package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/session"
	"github.com/heykaelo/heykaelo-backend/internal/util"
)

// OnboardingFlow walks a new business owner through the setup questionnaire
// and creates their identity and business profile on finalize.
type OnboardingFlow struct {
	sessions  SessionManager
	directory Directory
}

// NewOnboardingFlow creates the onboarding engine.
func NewOnboardingFlow(sessions SessionManager, directory Directory) *OnboardingFlow {
	return &OnboardingFlow{sessions: sessions, directory: directory}
}

// Start activates onboarding for the phone and returns the root prompt.
func (f *OnboardingFlow) Start(ctx context.Context, phone string) (string, error) {
	_, err := f.sessions.Upsert(ctx, phone, session.Patch{Set: map[string]string{
		models.MetaOnboardingActive: "true",
		models.MetaOnboardingStep:   stepRoot,
		models.MetaOnboardingData:   "{}",
	}})
	if err != nil {
		return "", fmt.Errorf("failed to start onboarding for %s: %w", phone, err)
	}
	slog.Info("OnboardingFlow.Start: onboarding activated", "phone", phone)
	return rootPrompt, nil
}

// Advance processes one owner message against the current onboarding step and
// returns the next outbound prompt. Unmapped root input re-prompts without
// mutating state; an unrecognized step id returns the unknown-transition reply.
func (f *OnboardingFlow) Advance(ctx context.Context, phone, input string, sess *models.Session) (string, error) {
	current := sess.MetaValue(models.MetaOnboardingStep)
	if current == "" {
		current = stepRoot
	}

	if current == stepRoot {
		return f.advanceRoot(ctx, phone, input)
	}

	branch, idx, ok := findOnboardingStep(current)
	if !ok {
		slog.Error("OnboardingFlow.Advance: unrecognized step", "phone", phone, "step", current)
		return ReplyUnknownTransition, nil
	}

	data := decodeDataBag(sess.MetaValue(models.MetaOnboardingData))
	data[branch.steps[idx].saveField] = strings.TrimSpace(input)

	if idx == len(branch.steps)-1 {
		return f.finalize(ctx, phone, branch, data)
	}

	next := branch.steps[idx+1]
	_, err := f.sessions.Upsert(ctx, phone, session.Patch{Set: map[string]string{
		models.MetaOnboardingStep: next.id,
		models.MetaOnboardingData: encodeDataBag(data),
	}})
	if err != nil {
		return "", fmt.Errorf("failed to advance onboarding for %s: %w", phone, err)
	}
	slog.Debug("OnboardingFlow.Advance: step advanced", "phone", phone, "from", current, "to", next.id)
	return next.prompt, nil
}

// advanceRoot classifies the work-style answer into a branch. The intro step
// is folded into the first question's message and never persisted as current.
func (f *OnboardingFlow) advanceRoot(ctx context.Context, phone, input string) (string, error) {
	category, ok := rootChoices[strings.ToLower(strings.TrimSpace(input))]
	if !ok {
		slog.Debug("OnboardingFlow.advanceRoot: unmapped input, re-prompting", "phone", phone)
		return rootPrompt, nil
	}

	branch := branchFor(category)
	first := branch.steps[0]
	_, err := f.sessions.Upsert(ctx, phone, session.Patch{Set: map[string]string{
		models.MetaOnboardingStep: first.id,
	}})
	if err != nil {
		return "", fmt.Errorf("failed to enter onboarding branch for %s: %w", phone, err)
	}
	slog.Info("OnboardingFlow.advanceRoot: branch selected", "phone", phone, "category", category)
	return branch.intro + "\n\n" + first.prompt, nil
}

// finalize creates the owner identity and business profile, clears the
// onboarding keys, and returns the branch's closing message. Replaying the
// final answer updates the existing profile rather than duplicating it.
func (f *OnboardingFlow) finalize(ctx context.Context, phone string, branch *onboardingBranch, data map[string]string) (string, error) {
	user, err := f.ensureIdentity(phone)
	if err != nil {
		return "", fmt.Errorf("failed to resolve identity for %s: %w", phone, err)
	}

	now := time.Now()
	profile := models.BusinessProfile{
		ID:               user.ID,
		PhoneNumber:      phone,
		BusinessName:     data[fieldBusinessName],
		Slug:             util.Slugify(data[fieldBusinessName]),
		RoleCategory:     branch.category,
		RoleType:         data[fieldRoleType],
		ServiceArea:      data[fieldServiceArea],
		WorkingDays:      data[fieldWorkingDays],
		ApprovalRequired: branch.category != models.RoleProfessional,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := f.directory.UpsertBusiness(profile); err != nil {
		slog.Warn("OnboardingFlow.finalize: upsert failed, retrying update by phone", "error", err, "phone", phone)
		if uerr := f.directory.UpdateBusinessByPhone(phone, profile); uerr != nil {
			return "", fmt.Errorf("failed to save business profile for %s: %w", phone, uerr)
		}
	}

	_, err = f.sessions.Upsert(ctx, phone, session.Patch{
		BusinessID: &user.ID,
		Delete: []string{
			models.MetaOnboardingActive,
			models.MetaOnboardingStep,
			models.MetaOnboardingData,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to clear onboarding state for %s: %w", phone, err)
	}

	slog.Info("OnboardingFlow.finalize: business created", "phone", phone,
		"businessID", user.ID, "category", branch.category, "slug", profile.Slug)
	return branch.closing, nil
}

// ensureIdentity creates an auth identity for the phone, reusing the existing
// one if creation hits a duplicate.
func (f *OnboardingFlow) ensureIdentity(phone string) (*models.User, error) {
	user := models.User{
		ID:          util.GenerateUserID(),
		PhoneNumber: phone,
		CreatedAt:   time.Now(),
	}
	createErr := f.directory.CreateUser(user)
	if createErr == nil {
		return &user, nil
	}

	existing, err := f.directory.FindUserByPhoneOrEmail(phone, "")
	if err != nil {
		return nil, fmt.Errorf("identity lookup after create failure: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("identity creation failed with no existing match: %w", createErr)
	}
	slog.Debug("OnboardingFlow.ensureIdentity: reusing existing identity", "phone", phone, "userID", existing.ID)
	return existing, nil
}

// branchFor returns the branch descriptor for a role category.
func branchFor(category models.RoleCategory) *onboardingBranch {
	for i := range onboardingBranches {
		if onboardingBranches[i].category == category {
			return &onboardingBranches[i]
		}
	}
	// Unreachable: rootChoices only maps to known categories.
	return &onboardingBranches[0]
}

// decodeDataBag parses a JSON data bag; corrupt or empty input degrades to an
// empty map so a flow can recover by re-collecting answers.
func decodeDataBag(raw string) map[string]string {
	data := make(map[string]string)
	if raw == "" {
		return data
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Warn("flow.decodeDataBag: corrupt data bag, starting fresh", "error", err)
		return make(map[string]string)
	}
	return data
}

// encodeDataBag serializes a data bag; a map of strings cannot fail to marshal.
func encodeDataBag(data map[string]string) string {
	raw, _ := json.Marshal(data)
	return string(raw)
}
