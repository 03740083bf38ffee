package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/form"
	"github.com/example/mpox-check/internal/imageprocessor"
	"github.com/example/mpox-check/internal/logging"
	"github.com/example/mpox-check/internal/repository"
	"github.com/example/mpox-check/internal/wizard"
)

// SessionStore is the per-session state the use case drives.
type SessionStore interface {
	Create() string
	With(id string, fn func(*wizard.Session) error) error
	Delete(id string)
}

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Option configures optional collaborators of the use case.
type Option func(*WizardUseCase)

// WithCache enables the prediction cache keyed by image digest.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(uc *WizardUseCase) {
		uc.cache = cache
		uc.cacheTTL = ttl
	}
}

// WithRepository enables the anonymous prediction log.
func WithRepository(repo PredictionRepository) Option {
	return func(uc *WizardUseCase) {
		uc.repo = repo
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(uc *WizardUseCase) {
		uc.now = now
	}
}

// WizardUseCase drives sessions through the wizard and runs the
// classification once a session reaches the result page.
type WizardUseCase struct {
	sessions       SessionStore
	classifier     classifier.Classifier
	cache          Cache
	cacheTTL       time.Duration
	repo           PredictionRepository
	logger         *zap.Logger
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewWizardUseCase constructs a new use case instance.
func NewWizardUseCase(sessions SessionStore, clf classifier.Classifier, logger *zap.Logger, opts ...Option) *WizardUseCase {
	uc := &WizardUseCase{
		sessions:       sessions,
		classifier:     clf,
		logger:         logger.Named("wizard_usecase"),
		now:            func() time.Time { return time.Now().UTC() },
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		cacheTTL:       24 * time.Hour,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ModelAvailable reports whether classifications can succeed.
func (uc *WizardUseCase) ModelAvailable() bool {
	return classifier.IsAvailable(uc.classifier)
}

// CreateSession starts a new session on the home page.
func (uc *WizardUseCase) CreateSession() wizard.View {
	id := uc.sessions.Create()
	view, err := uc.View(id)
	if err != nil {
		return wizard.NewSession(id, uc.now()).View()
	}
	logging.WithOperation(uc.logger, "usecase.create_session", id).Info("session created")
	return view
}

// View returns the current page of a session.
func (uc *WizardUseCase) View(sessionID string) (wizard.View, error) {
	var view wizard.View
	err := uc.sessions.With(sessionID, func(s *wizard.Session) error {
		view = s.View()
		return nil
	})
	return view, err
}

// Start leaves the home page.
func (uc *WizardUseCase) Start(sessionID string) (wizard.View, error) {
	return uc.apply(sessionID, "usecase.start", func(s *wizard.Session) error {
		return s.Start(uc.now())
	})
}

// SubmitPersonalInfo validates and stores personal details. A failed
// validation is reported in the returned result, not as an error.
func (uc *WizardUseCase) SubmitPersonalInfo(sessionID string, in form.PersonalInfo) (wizard.View, form.Result, error) {
	var res form.Result
	view, err := uc.apply(sessionID, "usecase.submit_personal_info", func(s *wizard.Session) error {
		var err error
		res, err = s.SubmitPersonalInfo(in, uc.now())
		return err
	})
	return view, res, err
}

// SubmitSymptoms validates and stores the symptom selection and image. img
// may be nil to reuse an image uploaded with an earlier failed submission.
func (uc *WizardUseCase) SubmitSymptoms(sessionID string, sel form.SymptomSelection, img *imageprocessor.Upload) (wizard.View, form.Result, error) {
	var res form.Result
	view, err := uc.apply(sessionID, "usecase.submit_symptoms", func(s *wizard.Session) error {
		var err error
		res, err = s.SubmitSymptoms(sel, img, uc.now())
		return err
	})
	return view, res, err
}

// ReplaceImage swaps the image of a session whose classification has not yet
// succeeded.
func (uc *WizardUseCase) ReplaceImage(sessionID string, img *imageprocessor.Upload) (wizard.View, error) {
	return uc.apply(sessionID, "usecase.replace_image", func(s *wizard.Session) error {
		return s.ReplaceImage(img, uc.now())
	})
}

// Restart discards the session's data and returns it to the home page.
func (uc *WizardUseCase) Restart(sessionID string) (wizard.View, error) {
	return uc.apply(sessionID, "usecase.restart", func(s *wizard.Session) error {
		return s.Restart(uc.now())
	})
}

// EndSession forgets the session and everything collected in it.
func (uc *WizardUseCase) EndSession(sessionID string) error {
	if err := uc.sessions.With(sessionID, func(*wizard.Session) error { return nil }); err != nil {
		return logging.NewOperationError("usecase.end_session", sessionID, err)
	}
	uc.sessions.Delete(sessionID)
	logging.WithOperation(uc.logger, "usecase.end_session", sessionID).Info("session ended")
	return nil
}

// Result returns the result page, classifying the session's image on first
// access. The prediction is computed once per session; later calls reuse it.
// On failure the returned view is still the result page so the caller can
// offer to replace the image.
func (uc *WizardUseCase) Result(ctx context.Context, sessionID string) (wizard.View, error) {
	var view wizard.View
	err := uc.sessions.With(sessionID, func(s *wizard.Session) error {
		defer func() { view = s.View() }()
		if s.CurrentPage != wizard.PageResult {
			return logging.NewOperationError("usecase.result", sessionID, wizard.ErrIllegalTransition)
		}
		if s.Prediction != nil {
			return nil
		}

		started := time.Now()
		prediction, cacheHit, err := uc.predict(ctx, s)
		if err != nil {
			return err
		}
		if err := s.RecordPrediction(prediction, uc.now()); err != nil {
			return logging.NewOperationError("usecase.record_prediction", sessionID, err)
		}
		latency := time.Since(started)

		logging.WithOperation(uc.logger, "usecase.result", sessionID).Info("prediction recorded",
			zap.String("label", string(prediction.Label)),
			zap.Bool("cache_hit", cacheHit),
			zap.Duration("latency", latency),
		)
		uc.saveLog(ctx, s, prediction, cacheHit, latency)
		return nil
	})
	return view, err
}

func (uc *WizardUseCase) apply(sessionID, operation string, fn func(*wizard.Session) error) (wizard.View, error) {
	var view wizard.View
	err := uc.sessions.With(sessionID, func(s *wizard.Session) error {
		err := fn(s)
		view = s.View()
		if err != nil {
			return logging.NewOperationError(operation, sessionID, err)
		}
		return nil
	})
	if err != nil {
		logging.WithOperation(uc.logger, operation, sessionID).Warn("wizard step rejected", zap.Error(err))
	}
	return view, err
}

func (uc *WizardUseCase) predict(ctx context.Context, s *wizard.Session) (classifier.Prediction, bool, error) {
	if s.Image == nil {
		return classifier.Prediction{}, false, logging.NewOperationError("usecase.predict", s.ID, form.ValidateImagePresent(false).Err())
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", s.ID)
	cacheKey := predictionCacheKey(s.Image.SHA1())

	if uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, s.ID, "cache.get.prediction", cacheKey)
		switch {
		case err == nil:
			prediction, err := decodePrediction(cached)
			if err == nil {
				return prediction, true, nil
			}
			opLogger.Warn("ignoring cached prediction", zap.Error(err))
		case !errors.Is(err, redis.Nil):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	tensor, err := imageprocessor.Preprocess(s.Image.Bytes())
	if err != nil {
		wrapped := logging.NewOperationError("usecase.preprocess_image", s.ID, err)
		opLogger.Error("image preprocessing failed", zap.Error(wrapped))
		return classifier.Prediction{}, false, wrapped
	}

	prediction, err := classifier.Predict(ctx, uc.classifier, tensor)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", s.ID, err)
		opLogger.Error("classification failed", zap.Error(wrapped))
		return classifier.Prediction{}, false, wrapped
	}

	if uc.cache != nil {
		serialized, err := encodePrediction(prediction)
		if err == nil {
			err = uc.withRedisRetry(ctx, s.ID, "cache.set.prediction", func() error {
				return uc.cache.Set(ctx, cacheKey, serialized, uc.cacheTTL)
			})
		}
		if err != nil {
			opLogger.Warn("failed to cache prediction", zap.Error(err))
		}
	}
	return prediction, false, nil
}

func (uc *WizardUseCase) saveLog(ctx context.Context, s *wizard.Session, p classifier.Prediction, cacheHit bool, latency time.Duration) {
	if uc.repo == nil {
		return
	}
	sel := s.Selection()
	log := &repository.PredictionLog{
		SessionID:         s.ID,
		Label:             string(p.Label),
		MpoxProbability:   p.Probability(classifier.LabelMpox),
		NormalProbability: p.Probability(classifier.LabelNormal),
		ImageSHA1:         s.Image.SHA1(),
		GeneralSymptoms:   strings.Join(sel.GeneralStrings(), ","),
		SkinSymptoms:      strings.Join(sel.SkinStrings(), ","),
		CacheHit:          cacheHit,
		LatencyMs:         latency.Milliseconds(),
		CreatedAt:         uc.now(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", s.ID, err)
		logging.WithOperation(uc.logger, "usecase.save_log", s.ID).Warn("failed to persist prediction log", zap.Error(wrapped))
	}
}

func (uc *WizardUseCase) withRedisRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, sessionID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, sessionID, err)
		}

		if !repository.IsTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func (uc *WizardUseCase) withRedisGet(ctx context.Context, sessionID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, sessionID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
