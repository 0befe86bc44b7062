package service

import (
	"bytes"
	"context"
	"edu_practice_backend/internal/util"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var reviewExportHeaders = []string{"日期", "学生ID", "错题本ID", "题目ID", "到期时间", "状态", "完成时间"}

// ExportDailyTasks 导出某天全部复习任务为 xlsx
func (s *ReviewSchedulerService) ExportDailyTasks(ctx context.Context, runDate time.Time) ([]byte, error) {
	tasks, err := s.ListDailyTasks(ctx, runDate, 0)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "复习任务"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range reviewExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, t := range tasks {
		row := i + 2
		completedAt := ""
		if t.CompletedAt != nil {
			completedAt = t.CompletedAt.Format(util.TimeFormat)
		}
		values := []interface{}{
			t.RunDate,
			t.StudentID,
			t.WrongBookID,
			t.QuestionID,
			t.DueAt.Format(util.TimeFormat),
			string(t.Status),
			completedAt,
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
