package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/config"
	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

const defaultHistoryDays = 30

// pathID 解析路径中的雪花 ID
func pathID(c *app.RequestContext, name string) (int64, error) {
	return parseID(c.Param(name), name)
}

// queryID 查询参数中的 ID，缺省为 0
func queryID(c *app.RequestContext, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return parseID(raw, name)
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errors.InvalidRequest, name)
	}
	return id, nil
}

// parseDate 日历日期统一使用 YYYY-MM-DD
func parseDate(raw, name string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be %s", errors.InvalidRequest, name, model.DateLayout)
	}
	return d, nil
}

// historyRange 未指定时返回最近 30 天
func historyRange(c *app.RequestContext) (time.Time, time.Time, error) {
	today := time.Now().In(config.Cfg.Location())
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -(defaultHistoryDays - 1))

	var err error
	if raw := c.Query("to"); raw != "" {
		if to, err = parseDate(raw, "to"); err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = to.AddDate(0, 0, -(defaultHistoryDays - 1))
	}
	if raw := c.Query("from"); raw != "" {
		if from, err = parseDate(raw, "from"); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}

func queryInt(c *app.RequestContext, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s", errors.InvalidRequest, name)
	}
	return n, nil
}
