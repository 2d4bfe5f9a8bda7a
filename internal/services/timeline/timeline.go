// Package timeline строит синтетическую историю доставки по шаблонам этапов.
//
// Project и Summarize не имеют побочных эффектов. Переход в "Entregue" вынесен в
// Transition, чтобы побочный эффект жил только в сервисе.
package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/BearBump/ShipTrack/internal/models"
)

const (
	day       = 24 * time.Hour
	eventTime = "08:00"
	dateFmt   = "02/01/2006"
)

// ElapsedDays считает число полных суток с момента создания, не меньше нуля.
func ElapsedDays(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// MaxDayOffset по всем шаблонам; для пустого набора 0.
func MaxDayOffset(stages []models.StageTemplate) int {
	maxOffset := 0
	for _, st := range stages {
		if st.DayOffset > maxOffset {
			maxOffset = st.DayOffset
		}
	}
	return maxOffset
}

// Project возвращает достигнутые этапы как события, самые свежие первыми.
// ID события равен позиции среди достигнутых этапов по возрастанию dayOffset.
func Project(s *models.Shipment, stages []models.StageTemplate, now time.Time, loc *time.Location) []models.Event {
	if loc == nil {
		loc = time.UTC
	}
	elapsed := ElapsedDays(s.CreatedAt, now)

	sorted := make([]models.StageTemplate, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DayOffset < sorted[j].DayOffset })

	created := s.CreatedAt.In(loc)
	location := fmt.Sprintf("%s - %s", s.Neighborhood, s.PostalCode)

	events := make([]models.Event, 0, len(sorted))
	for _, st := range sorted {
		if st.DayOffset > elapsed {
			break
		}
		events = append(events, models.Event{
			ID:          strconv.Itoa(len(events) + 1),
			Status:      st.Title,
			Description: st.Message,
			Location:    location,
			Date:        created.AddDate(0, 0, st.DayOffset).Format(dateFmt),
			Time:        eventTime,
			IsCompleted: true,
		})
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events
}

// Transition сообщает, нужно ли перевести отправление в "Entregue".
// Переход необратим: для уже доставленного всегда false.
func Transition(s *models.Shipment, stages []models.StageTemplate, now time.Time) (string, bool) {
	if s.Delivered() {
		return "", false
	}
	if ElapsedDays(s.CreatedAt, now) >= MaxDayOffset(stages) {
		return models.ShipmentStatusDelivered, true
	}
	return "", false
}

func Summarize(s *models.Shipment, events []models.Event) models.PackageInfo {
	estimated := ""
	if len(events) > 0 {
		estimated = events[0].Date
	}
	return models.PackageInfo{
		Recipient:         s.Name,
		Origin:            fmt.Sprintf("%s, %s - %s", s.Street, s.Number, s.Neighborhood),
		Destination:       s.PostalCode,
		EstimatedDelivery: estimated,
		Status:            s.Status,
		Delivered:         s.Delivered(),
	}
}
