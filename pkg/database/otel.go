package database

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram

	quotedLiteral = regexp.MustCompile(`'[^']*'`)
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	return err
}

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer trace.Tracer
	config PluginConfig
}

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName   string
	EnableMetrics bool
	MaxSQLLength  int
}

// DefaultPluginConfig 默认插件配置
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:   "habitpact",
		EnableMetrics: true,
		MaxSQLLength:  500,
	}
}

// NewOTELPlugin 创建插件实例
func NewOTELPlugin(config PluginConfig) *OTELPlugin {
	if config.ServiceName == "" {
		config.ServiceName = "habitpact"
	}
	if config.EnableMetrics && dbQueriesTotal == nil {
		if err := InitDatabaseMetrics(otel.Meter(config.ServiceName + ".gorm")); err != nil {
			config.EnableMetrics = false
		}
	}

	return &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after); err != nil {
		return err
	}
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after)
}

func (p *OTELPlugin) before(db *gorm.DB) {
	attrs := []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("service.name", p.config.ServiceName),
	}
	if table := db.Statement.Table; table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}

	ctx, span := p.tracer.Start(db.Statement.Context, "db."+db.Statement.Table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	db.InstanceSet("otel:start_time", time.Now())
	db.InstanceSet("otel:span", span)
	db.Statement.Context = ctx
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet("otel:span")
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := operationName(db.Statement.SQL.String())
	span.SetName(operation)
	span.SetAttributes(
		semconv.DBStatement(p.sanitize(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case db.Error == gorm.ErrRecordNotFound:
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if !p.config.EnableMetrics {
		return
	}
	var elapsed float64
	if start, ok := db.InstanceGet("otel:start_time"); ok {
		if t, ok := start.(time.Time); ok {
			elapsed = time.Since(t).Seconds()
		}
	}
	p.record(db.Statement.Context, operation, status, elapsed)
}

func (p *OTELPlugin) record(ctx context.Context, operation, status string, elapsed float64) {
	labels := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	dbQueriesTotal.Add(ctx, 1, labels)
	dbQueryDuration.Record(ctx, elapsed, labels)
}

// sanitize 截断并去掉字面量，避免把用户数据写入 span
func (p *OTELPlugin) sanitize(sql string) string {
	if len(sql) > p.config.MaxSQLLength {
		sql = sql[:p.config.MaxSQLLength] + "..."
	}
	return quotedLiteral.ReplaceAllString(sql, "'?'")
}

func operationName(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case sql == "":
		return "db.unknown"
	case strings.HasPrefix(sql, "SELECT"):
		return "db.select"
	case strings.HasPrefix(sql, "INSERT"):
		return "db.insert"
	case strings.HasPrefix(sql, "UPDATE"):
		return "db.update"
	case strings.HasPrefix(sql, "DELETE"):
		return "db.delete"
	default:
		return "db.query"
	}
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, config PluginConfig) error {
	return db.Use(NewOTELPlugin(config))
}

// WithDefaultOTELPlugin 使用默认配置添加 OpenTelemetry 插件
func WithDefaultOTELPlugin(db *gorm.DB, serviceName string) error {
	config := DefaultPluginConfig()
	config.ServiceName = serviceName
	return WithOTELPlugin(db, config)
}
