// Package streak 连胜计算，纯函数，不做任何 I/O
package streak

import (
	"time"

	"HabitPact/internal/model"
)

const day = 24 * time.Hour

// weekdayWindow 周五到周一相隔 3 天仍算连续
const weekdayWindow = 3

// Rule 习惯的频率规则
type Rule struct {
	Frequency model.Frequency
	PerWeek   int // 仅 custom 使用
}

// RuleOf 从习惯读取规则
func RuleOf(h *model.Habit) Rule {
	return Rule{Frequency: h.Frequency, PerWeek: h.PerWeekTarget}
}

// Prior 新日期之前最近一条计入连胜的记录
type Prior struct {
	Date   time.Time
	Streak int
	// WeekCompletions Date 所在自然周（周一开始）内计入的记录数，仅 custom 使用
	WeekCompletions int
}

// Day 把时间换算成 loc 时区下的日历日期，统一表示为该日期的 UTC 零点
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Normalize 已经是日历日期的值去掉时区和时分秒
func Normalize(d time.Time) time.Time {
	y, m, dd := d.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

// Gap 从 from 到 to 相隔的日历天数，to 更早时为负
func Gap(from, to time.Time) int {
	return int(Normalize(to).Sub(Normalize(from)) / day)
}

// WeekStart 所在周的周一
func WeekStart(d time.Time) time.Time {
	d = Normalize(d)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Continues 在 date 打卡时 prior 所在的连胜是否延续（不含 custom 的同周情况）
func Continues(rule Rule, prior Prior, date time.Time) bool {
	gap := Gap(prior.Date, date)
	if gap < 1 {
		return false
	}

	switch rule.Frequency {
	case model.FrequencyDaily:
		return gap == 1
	case model.FrequencyWeekdays:
		return gap <= weekdayWindow
	case model.FrequencyCustom:
		prevWeek := WeekStart(date).AddDate(0, 0, -7)
		return WeekStart(prior.Date).Equal(prevWeek) && prior.WeekCompletions >= target(rule)
	default:
		return false
	}
}

// Next 计算 date 这次打卡后的连胜值
func Next(prior *Prior, date time.Time, rule Rule) int {
	if prior == nil {
		return 1
	}

	if rule.Frequency == model.FrequencyCustom {
		// 同一周内再次打卡不改变按周计的连胜
		if WeekStart(prior.Date).Equal(WeekStart(date)) && Gap(prior.Date, date) >= 0 {
			return max(prior.Streak, 1)
		}
	}

	if Continues(rule, *prior, date) {
		return prior.Streak + 1
	}
	return 1
}

// CrossedMultiple 连胜从 prev 变为 next 时是否跨过 every 的整数倍
func CrossedMultiple(prev, next, every int) bool {
	if every <= 0 || next <= prev {
		return false
	}
	return next/every > prev/every
}

func target(rule Rule) int {
	if rule.PerWeek < 1 {
		return 1
	}
	return rule.PerWeek
}
