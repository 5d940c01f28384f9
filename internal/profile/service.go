package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xray-profile/internal/config"
	"xray-profile/internal/dataset"
	"xray-profile/internal/domain"
	"xray-profile/internal/metrics"
	"xray-profile/internal/store"
	"xray-profile/internal/subscription"
	"xray-profile/internal/xray"
)

var Module = fx.Provide(NewService)

var (
	ErrAlreadyInitialized = errors.New("document already exists, use --force to overwrite")
	ErrMetricsDisabled    = errors.New("metrics are not enabled")
	ErrNoSubscriptions    = errors.New("no subscriptions configured")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
)

// Service runs every edit as load, mutate, save against the stored document.
type Service struct {
	store         *store.Store
	converter     subscription.Converter
	subscriptions *subscription.Client
	subs          []domain.Subscription
	datasets      *dataset.Manager
	collector     *metrics.Collector
	policy        xray.UnknownProtocolPolicy
	textfile      string
	http          *http.Client
	logger        *zap.Logger
}

type Params struct {
	fx.In

	Config        *config.Config
	Store         *store.Store
	Converter     subscription.Converter
	Subscriptions *subscription.Client
	Datasets      *dataset.Manager
	Collector     *metrics.Collector
	Logger        *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		store:         p.Store,
		converter:     p.Converter,
		subscriptions: p.Subscriptions,
		subs:          p.Config.Subscriptions,
		datasets:      p.Datasets,
		collector:     p.Collector,
		policy:        p.Config.Decode.Policy(),
		textfile:      p.Config.Metrics.TextfilePath,
		http:          &http.Client{Timeout: p.Config.Fetch.Timeout()},
		logger:        p.Logger.With(zap.String("component", "profile")),
	}
}

// Load decodes the stored document with the configured unknown-protocol policy.
// Fallbacks are logged and counted.
func (s *Service) Load() (*xray.Config, error) {
	return s.store.Load(
		xray.WithUnknownProtocolPolicy(s.policy),
		xray.WithWarningHandler(s.warn),
	)
}

func (s *Service) warn(w xray.Warning) {
	s.logger.Warn("unknown protocol replaced by default settings",
		zap.String("path", w.Path),
		zap.String("tag", w.Tag),
		zap.String("protocol", string(w.Protocol)),
		zap.String("fallback", string(w.Fallback)))
	s.collector.RecordDecodeWarning(string(w.Protocol))
}

func (s *Service) update(operation string, mutate func(*xray.Config) error) (err error) {
	defer func() {
		s.collector.RecordDocumentWrite(operation, err)
	}()

	cfg, err := s.Load()
	if err != nil {
		return err
	}
	if err = mutate(cfg); err != nil {
		return err
	}
	if err = s.store.Save(cfg); err != nil {
		return err
	}
	s.logger.Info("document updated",
		zap.String("operation", operation),
		zap.String("path", s.store.Path()))
	return nil
}

// Init writes the default document. An existing document is kept unless force is set.
func (s *Service) Init(force bool) error {
	if s.store.Exists() && !force {
		return ErrAlreadyInitialized
	}
	cfg := xray.New()
	err := s.store.Save(cfg)
	s.collector.RecordDocumentWrite("init", err)
	if err != nil {
		return err
	}
	s.logger.Info("document initialized", zap.String("path", s.store.Path()))
	return nil
}

// Show returns the stored document as it would be written.
func (s *Service) Show() ([]byte, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return xray.Encode(cfg)
}

func (s *Service) EnableMetrics() error {
	return s.update("metrics-enable", func(cfg *xray.Config) error {
		cfg.EnableMetrics()
		return nil
	})
}

func (s *Service) DisableMetrics() error {
	return s.update("metrics-disable", func(cfg *xray.Config) error {
		cfg.DisableMetrics()
		return nil
	})
}

// MetricsPort returns the port of the metrics listener.
func (s *Service) MetricsPort() (int, error) {
	cfg, err := s.Load()
	if err != nil {
		return 0, err
	}
	port, ok := cfg.FindMetricsPort()
	if !ok {
		return 0, ErrMetricsDisabled
	}
	return port, nil
}

func (s *Service) SetMetricsPort(port int) error {
	if port <= 0 || port > 65535 {
		return ErrInvalidPort
	}
	return s.update("metrics-port", func(cfg *xray.Config) error {
		if !cfg.SetMetricsPort(port) {
			return ErrMetricsDisabled
		}
		return nil
	})
}

// Socks returns the local socks listener, if the document has one.
func (s *Service) Socks() (xray.Inbound, bool, error) {
	cfg, err := s.Load()
	if err != nil {
		return xray.Inbound{}, false, err
	}
	in, ok := cfg.FindSocksInbound()
	if !ok {
		return xray.Inbound{}, false, nil
	}
	return *in, true, nil
}

// ImportResult lists the tags written by an import and the links that were skipped.
type ImportResult struct {
	Tags       []string
	Failed     int
	LinkErrors error
}

// Import converts a share-link document and adds its outbounds. An outbound
// whose tag already exists replaces the old one, except for the built-in
// direct and block outbounds: imports named after them get a numeric suffix.
func (s *Service) Import(body []byte) (ImportResult, error) {
	outbounds, linkErrs := s.converter.Convert(body)
	if errors.Is(linkErrs, subscription.ErrUnreadableBody) {
		return ImportResult{}, linkErrs
	}

	result := ImportResult{
		Failed:     subscription.FailedCount(linkErrs),
		LinkErrors: linkErrs,
	}
	s.collector.RecordLinksImported("import", len(outbounds), result.Failed)
	for _, err := range multierr.Errors(linkErrs) {
		s.logger.Warn("share link skipped", zap.Error(err))
	}
	if len(outbounds) == 0 {
		return result, nil
	}
	s.renameBuiltinTags(outbounds)

	err := s.update("import", func(cfg *xray.Config) error {
		for _, out := range outbounds {
			cfg.RemoveOutbound(out.Tag)
		}
		cfg.ImportOutbounds(outbounds...)
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	for _, out := range outbounds {
		result.Tags = append(result.Tags, out.Tag)
	}
	return result, nil
}

// renameBuiltinTags moves imported outbounds off the built-in tags to the
// first "<tag>-N" not used elsewhere in the batch.
func (s *Service) renameBuiltinTags(outbounds []xray.Outbound) {
	used := make(map[string]struct{}, len(outbounds))
	for _, out := range outbounds {
		used[out.Tag] = struct{}{}
	}
	for i := range outbounds {
		tag := outbounds[i].Tag
		if tag != xray.DirectTag && tag != xray.BlockTag {
			continue
		}
		renamed := tag
		for n := 2; ; n++ {
			renamed = fmt.Sprintf("%s-%d", tag, n)
			if _, taken := used[renamed]; !taken {
				break
			}
		}
		used[renamed] = struct{}{}
		outbounds[i].Tag = renamed
		s.logger.Warn("imported outbound renamed off a built-in tag",
			zap.String("tag", tag),
			zap.String("renamed", renamed))
	}
}

// Subscribe refreshes every configured subscription. Outbounds of a
// subscription that refreshed are replaced; a failed one keeps its old set.
func (s *Service) Subscribe(ctx context.Context) ([]subscription.Result, error) {
	if len(s.subs) == 0 {
		return nil, ErrNoSubscriptions
	}

	results := s.subscriptions.FetchAll(ctx, s.subs)

	refreshed := 0
	for _, r := range results {
		if r.Err == nil {
			refreshed++
		}
	}
	if refreshed == 0 {
		return results, fmt.Errorf("all %d subscriptions failed", len(results))
	}

	err := s.update("subscribe", func(cfg *xray.Config) error {
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			removeWithPrefix(cfg, r.Subscription.TagPrefix())
			cfg.ImportOutbounds(r.Outbounds...)
		}
		return nil
	})
	return results, err
}

func removeWithPrefix(cfg *xray.Config, prefix string) {
	var stale []string
	for _, out := range cfg.Outbounds {
		if strings.HasPrefix(out.Tag, prefix) {
			stale = append(stale, out.Tag)
		}
	}
	for _, tag := range stale {
		cfg.RemoveOutbound(tag)
	}
}

// CheckReport collects problems that would stop the engine from starting cleanly.
type CheckReport struct {
	DuplicateTags   []string
	Dangling        []xray.DanglingReference
	MissingDatasets []string
}

func (r CheckReport) OK() bool {
	return len(r.DuplicateTags) == 0 && len(r.Dangling) == 0 && len(r.MissingDatasets) == 0
}

func (s *Service) Check() (CheckReport, error) {
	cfg, err := s.Load()
	if err != nil {
		return CheckReport{}, err
	}
	return CheckReport{
		DuplicateTags:   cfg.DuplicateTags(),
		Dangling:        cfg.DanglingReferences(),
		MissingDatasets: s.datasets.MissingRequired(),
	}, nil
}

// MetricsReport reads traffic counters from the running engine through the
// metrics listener, records them and writes the textfile when one is configured.
func (s *Service) MetricsReport(ctx context.Context) (*metrics.Report, error) {
	port, err := s.MetricsPort()
	if err != nil {
		return nil, err
	}

	report, err := metrics.QueryReport(ctx, s.http, metrics.ReportURL(port))
	if err != nil {
		return nil, err
	}
	report.Record(s.collector)

	if s.textfile != "" {
		if err := s.collector.WriteTextfile(s.textfile); err != nil {
			return report, err
		}
	}
	return report, nil
}
