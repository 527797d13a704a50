package appraisal

import (
	"context"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// Report writes a PDF summary of a complete appraisal to w.
func (s *Service) Report(ctx context.Context, actor Actor, appraisalID string, w io.Writer) error {
	view, err := s.Get(ctx, actor, appraisalID)
	if err != nil {
		return err
	}
	if view.Appraisal.Status != StatusComplete {
		return fmt.Errorf("%w: status is %s", ErrNotComplete, view.Appraisal.Status)
	}
	a := view.Appraisal
	people, err := s.participants(ctx, actor.TenantID, a.AppraiseeID, a.AppraiserID, a.ReviewerID)
	if err != nil {
		return err
	}
	return renderReport(w, view, BuildScorecard(view), people[0], people[1], people[2])
}

func renderReport(w io.Writer, view AppraisalView, card Scorecard, appraisee, appraiser, reviewer Participant) error {
	a := view.Appraisal
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Performance Appraisal")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Appraisee: %s", appraisee.Name))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Appraiser: %s", appraiser.Name))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Reviewer: %s", reviewer.Name))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s", a.Period.Start.Format("2006-01-02"), a.Period.End.Format("2006-01-02")))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(80, 8, "Goal", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Weight", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 8, "Self", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 8, "Appraiser", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 8, "Score", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, g := range card.Goals {
		pdf.CellFormat(80, 7, truncate(g.Title, 45), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d%%", g.Weightage), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", g.SelfRating), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", g.AppraiserRating), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 7, g.AppraiserScore.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Weighted self score: %s", card.SelfTotal.StringFixed(2)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Weighted appraiser score: %s", card.AppraiserTotal.StringFixed(2)))
	pdf.Ln(10)
	pdf.Cell(0, 8, fmt.Sprintf("Appraiser overall rating: %d", a.AppraiserOverallRating))
	pdf.Ln(7)
	pdf.MultiCell(0, 6, a.AppraiserOverallComments, "", "L", false)
	pdf.Ln(4)
	pdf.Cell(0, 8, fmt.Sprintf("Reviewer overall rating: %d", a.ReviewerOverallRating))
	pdf.Ln(7)
	pdf.MultiCell(0, 6, a.ReviewerOverallComments, "", "L", false)

	return pdf.Output(w)
}

func truncate(value string, n int) string {
	r := []rune(value)
	if len(r) <= n {
		return value
	}
	return string(r[:n-3]) + "..."
}
