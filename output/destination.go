// Package output keeps registered destinations and creates writers to send records to them
package output

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/output/beats"
	"github.com/relex/slog-relay/output/datadog"
	"github.com/relex/slog-relay/output/fluentdforward"
	"github.com/relex/slog-relay/output/splunk"
)

// DestinationConstructor creates a client for a destination config
type DestinationConstructor func(parentLogger logger.Logger, config base.DestinationConfig, metricCreator promreg.MetricCreator) (base.Destination, error)

var destinationConstructorsByScheme = map[string]DestinationConstructor{
	"http":    splunk.NewClient,
	"https":   splunk.NewClient,
	"fluent":  fluentdforward.NewClient,
	"fluents": fluentdforward.NewClient,
	"beats":   beats.NewClient,

	"datadog":      datadog.NewClient,
	"datadog+http": datadog.NewClient,
}

// NewDestination creates a client for the given config, with the kind of destination selected by URL scheme
func NewDestination(parentLogger logger.Logger, config base.DestinationConfig, metricCreator promreg.MetricCreator) (base.Destination, error) {
	constructor, err := lookupDestinationConstructor(config.RemoteURL)
	if err != nil {
		return nil, err
	}
	return constructor(parentLogger, config, metricCreator)
}

// ValidateRemoteURL checks whether the given URL has a supported scheme
func ValidateRemoteURL(remoteURL string) error {
	_, err := lookupDestinationConstructor(remoteURL)
	return err
}

func lookupDestinationConstructor(remoteURL string) (DestinationConstructor, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	constructor, ok := destinationConstructorsByScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme '%s' in remote URL", u.Scheme)
	}
	return constructor, nil
}
