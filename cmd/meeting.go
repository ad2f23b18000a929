package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadform/internal/meeting"
	"github.com/sells-group/leadform/internal/model"
)

var (
	meetingPath      string
	meetingFallback  string
	meetingSize      string
	meetingFunding   string
	meetingFirstName string
	meetingLastName  string
	meetingEmail     string
)

var meetingCmd = &cobra.Command{
	Use:   "meeting-link",
	Short: "Print the scheduling link a visitor would be shown on a demo page",
	Example: `  leadform meeting-link --path /demo --size "1,001-5,000 employees" \
    --first-name Ada --last-name Lovelace --email ada@acme.com`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if meetingPath == "" {
			return eris.New("meeting-link: --path is required")
		}
		funding, err := parseFunding(meetingFunding)
		if err != nil {
			return err
		}

		var company *model.CompanyProfile
		if meetingSize != "" || funding > 0 {
			company = &model.CompanyProfile{Size: meetingSize, Funding: funding}
		}
		contact := model.UserContactInfo{
			FirstName: meetingFirstName,
			LastName:  meetingLastName,
			Email:     meetingEmail,
		}

		src := meeting.NewPicker(meetingLinks()).Link(meetingPath, meetingFallback, company, contact)
		_, err = fmt.Fprintln(cmd.OutOrStdout(), src)
		return err
	},
}

func init() {
	f := meetingCmd.Flags()
	f.StringVar(&meetingPath, "path", "", "demo page path, e.g. /demo")
	f.StringVar(&meetingFallback, "fallback", "", "link used when no tiered link applies")
	f.StringVar(&meetingSize, "size", "", "company employee size band")
	f.StringVar(&meetingFunding, "funding", "", "company total funding in dollars")
	f.StringVar(&meetingFirstName, "first-name", "", "visitor first name")
	f.StringVar(&meetingLastName, "last-name", "", "visitor last name")
	f.StringVar(&meetingEmail, "email", "", "visitor email")
	rootCmd.AddCommand(meetingCmd)
}
