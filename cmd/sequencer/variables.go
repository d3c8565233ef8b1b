package main

import (
	"context"
	"fmt"
	"strconv"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sequencer/internal/params"
	"github.com/nerrad567/gray-logic-sequencer/internal/pv"
	"github.com/nerrad567/gray-logic-sequencer/internal/script"
)

// newVariable creates the typed process variable declared by vc.
// An empty Initial selects the type's zero value.
func newVariable(ctx context.Context, sc *script.Context, vc config.VariableConfig) (pv.Variable, error) {
	switch params.KeyType(vc.Type) {
	case params.TypeInt:
		initial, err := parseInitial(vc.Initial, func(s string) (int32, error) {
			n, err := strconv.ParseInt(s, 10, 32)
			return int32(n), err
		})
		if err != nil {
			return nil, err
		}
		return asVariable(script.ParamVariable(ctx, sc, initial, vc.EventKey, params.IntKey(vc.Param), vc.PollInterval))
	case params.TypeLong:
		initial, err := parseInitial(vc.Initial, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
		if err != nil {
			return nil, err
		}
		return asVariable(script.ParamVariable(ctx, sc, initial, vc.EventKey, params.LongKey(vc.Param), vc.PollInterval))
	case params.TypeDouble:
		initial, err := parseInitial(vc.Initial, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
		if err != nil {
			return nil, err
		}
		return asVariable(script.ParamVariable(ctx, sc, initial, vc.EventKey, params.DoubleKey(vc.Param), vc.PollInterval))
	case params.TypeString:
		return asVariable(script.ParamVariable(ctx, sc, vc.Initial, vc.EventKey, params.StringKey(vc.Param), vc.PollInterval))
	case params.TypeBoolean:
		initial, err := parseInitial(vc.Initial, strconv.ParseBool)
		if err != nil {
			return nil, err
		}
		return asVariable(script.ParamVariable(ctx, sc, initial, vc.EventKey, params.BooleanKey(vc.Param), vc.PollInterval))
	default:
		return nil, fmt.Errorf("unsupported variable type %q", vc.Type)
	}
}

// asVariable keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func asVariable[T any](v *pv.ParamVariable[T], err error) (pv.Variable, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func parseInitial[T any](s string, parse func(string) (T, error)) (T, error) {
	var zero T
	if s == "" {
		return zero, nil
	}
	v, err := parse(s)
	if err != nil {
		return zero, fmt.Errorf("parsing initial value %q: %w", s, err)
	}
	return v, nil
}

// changeLogger returns a dependent that logs every refresh of v.
func changeLogger(log *logging.Logger, vc config.VariableConfig, v pv.Variable) pv.Dependent {
	return func(_ context.Context, source string) error {
		var value any
		if p, ok := v.Latest().Params.Find(vc.Param); ok {
			value = p.First()
		}
		log.Info("variable refreshed",
			"variable", vc.Name,
			"source", source,
			"value", value,
		)
		return nil
	}
}

// logMetricsSummary logs the final value of every counter and histogram.
func logMetricsSummary(ctx context.Context, reader sdkmetric.Reader, log *logging.Logger) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		log.Warn("collecting metrics failed", "error", err)
		return
	}

	var attrs []any
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				attrs = append(attrs, m.Name, total)
			case metricdata.Histogram[float64]:
				var count uint64
				for _, dp := range data.DataPoints {
					count += dp.Count
				}
				attrs = append(attrs, m.Name+".count", count)
			}
		}
	}
	log.Info("metrics summary", attrs...)
}
