package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/stannp/internal/config"
	"github.com/tyemirov/stannp/internal/service"
	"github.com/tyemirov/stannp/pkg/logging"
	"github.com/tyemirov/stannp/pkg/stannp"
)

const (
	flagDebug              = "debug"
	flagEnvFile            = "env_file"
	flagRecipientFile      = "recipient_file"
	flagLetterParamsFile   = "letter_params_file"
	flagPDFFile            = "pdf_file"
	flagInlinePDF          = "inline_pdf"
	flagPostcardParamsFile = "postcard_params_file"
	flagFrontFile          = "front_file"
	flagBackFile           = "back_file"
	flagGroupID            = "group_id"

	defaultGroupID = "0"
)

// MailService is implemented by service.MailService.
type MailService interface {
	Send(context.Context, service.SendRequest) (service.Submission, error)
	SendLetter(context.Context, service.LetterRequest) (service.Submission, error)
	SendPostcard(context.Context, service.PostcardRequest) (service.Submission, error)
	ListRecipients(ctx context.Context, groupID string) (string, error)
	WhoAmI(context.Context) (string, error)
}

// ServiceFactory builds the mail service once the configuration is known.
type ServiceFactory func(cfg *config.Config, logger *slog.Logger) (MailService, error)

type Dependencies struct {
	Viper      *viper.Viper
	LoadConfig func(*viper.Viper) (config.Config, error)
	NewService ServiceFactory
	Output     io.Writer
	LogOutput  io.Writer
}

// NewMailService is the production ServiceFactory backed by the Stannp HTTP client.
func NewMailService(cfg *config.Config, logger *slog.Logger) (MailService, error) {
	client, err := stannp.NewClient(logger, stannp.Settings{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Verbose:           cfg.Debug,
		InlineAttachments: cfg.InlinePDF,
	})
	if err != nil {
		return nil, err
	}
	return service.NewMailService(cfg, client, logger), nil
}

func NewRootCommand(dependencies Dependencies) *cobra.Command {
	if dependencies.Viper == nil {
		dependencies.Viper = viper.New()
	}
	if dependencies.LoadConfig == nil {
		dependencies.LoadConfig = config.Load
	}
	if dependencies.NewService == nil {
		dependencies.NewService = NewMailService
	}

	root := &cobra.Command{
		Use:           "stannp",
		Short:         "Send letters and postcards through the Stannp API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool(flagDebug, false, "Enable debug mode for more verbose output")
	root.PersistentFlags().String(flagEnvFile, config.DefaultEnvFile, "Path to the .env file holding STANNP_API_KEY")
	_ = dependencies.Viper.BindPFlag(config.KeyDebug, root.PersistentFlags().Lookup(flagDebug))
	_ = dependencies.Viper.BindPFlag(config.KeyEnvFile, root.PersistentFlags().Lookup(flagEnvFile))

	root.AddCommand(buildSendCommand(dependencies))
	root.AddCommand(buildLetterCommand(dependencies))
	root.AddCommand(buildPostcardCommand(dependencies))
	root.AddCommand(buildRecipientsCommand(dependencies))
	root.AddCommand(buildWhoAmICommand(dependencies))
	return root
}

func buildSendCommand(dependencies Dependencies) *cobra.Command {
	var request service.SendRequest

	command := &cobra.Command{
		Use:   "send",
		Short: "Send a letter, or a postcard when no recipient file is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			mailService, err := prepare(cmd, dependencies)
			if err != nil {
				return err
			}
			submission, err := mailService.Send(cmd.Context(), request)
			if err != nil {
				return err
			}
			return printSubmission(dependencies.Output, submission)
		},
	}

	command.Flags().StringVar(&request.Letter.RecipientFile, flagRecipientFile, "", "Path to the recipient JSON file")
	command.Flags().StringVar(&request.Letter.LetterParamsFile, flagLetterParamsFile, "", "Path to the letter parameters JSON file")
	command.Flags().StringVar(&request.Letter.PDFFile, flagPDFFile, "", "Path to the PDF file")
	command.Flags().Bool(flagInlinePDF, false, "Send the PDF base64-encoded in a form field")
	command.Flags().StringVar(&request.Postcard.ParamsFile, flagPostcardParamsFile, "", "Path to the postcard parameters JSON file, used when no recipient file is given")
	command.Flags().StringVar(&request.Postcard.FrontFile, flagFrontFile, "", "Path to the postcard front artwork")
	command.Flags().StringVar(&request.Postcard.BackFile, flagBackFile, "", "Path to the postcard back artwork")

	return command
}

func buildLetterCommand(dependencies Dependencies) *cobra.Command {
	var request service.LetterRequest

	command := &cobra.Command{
		Use:   "letter",
		Short: "Create a letter from recipient and letter parameter files and a PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			mailService, err := prepare(cmd, dependencies)
			if err != nil {
				return err
			}
			submission, err := mailService.SendLetter(cmd.Context(), request)
			if err != nil {
				return err
			}
			return printSubmission(dependencies.Output, submission)
		},
	}

	command.Flags().StringVar(&request.RecipientFile, flagRecipientFile, "", "Path to the recipient JSON file")
	command.Flags().StringVar(&request.LetterParamsFile, flagLetterParamsFile, "", "Path to the letter parameters JSON file")
	command.Flags().StringVar(&request.PDFFile, flagPDFFile, "", "Path to the PDF file")
	command.Flags().Bool(flagInlinePDF, false, "Send the PDF base64-encoded in a form field")

	markRequired(command, flagRecipientFile)
	markRequired(command, flagLetterParamsFile)
	markRequired(command, flagPDFFile)

	return command
}

func buildPostcardCommand(dependencies Dependencies) *cobra.Command {
	var request service.PostcardRequest

	command := &cobra.Command{
		Use:   "postcard",
		Short: "Create a postcard from a parameters file and optional artwork",
		RunE: func(cmd *cobra.Command, args []string) error {
			mailService, err := prepare(cmd, dependencies)
			if err != nil {
				return err
			}
			submission, err := mailService.SendPostcard(cmd.Context(), request)
			if err != nil {
				return err
			}
			return printSubmission(dependencies.Output, submission)
		},
	}

	command.Flags().StringVar(&request.ParamsFile, flagPostcardParamsFile, "", "Path to the postcard parameters JSON file")
	command.Flags().StringVar(&request.FrontFile, flagFrontFile, "", "Path to the postcard front artwork")
	command.Flags().StringVar(&request.BackFile, flagBackFile, "", "Path to the postcard back artwork")

	markRequired(command, flagPostcardParamsFile)

	return command
}

func buildRecipientsCommand(dependencies Dependencies) *cobra.Command {
	var groupID string

	command := &cobra.Command{
		Use:   "recipients",
		Short: "List the recipients of a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			mailService, err := prepare(cmd, dependencies)
			if err != nil {
				return err
			}
			response, err := mailService.ListRecipients(cmd.Context(), groupID)
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintln(output(dependencies.Output), response)
			return writeErr
		},
	}

	command.Flags().StringVar(&groupID, flagGroupID, defaultGroupID, "Recipient group identifier")

	return command
}

func buildWhoAmICommand(dependencies Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Check that the API key is accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mailService, err := prepare(cmd, dependencies)
			if err != nil {
				return err
			}
			response, err := mailService.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintf(output(dependencies.Output), "Authentication succeeded: %s\n", response)
			return writeErr
		},
	}
}

// prepare loads the configuration and builds the service for one command run.
// A missing API key stops here, before any client exists.
func prepare(cmd *cobra.Command, dependencies Dependencies) (MailService, error) {
	if inlineFlag := cmd.Flags().Lookup(flagInlinePDF); inlineFlag != nil {
		if err := dependencies.Viper.BindPFlag(config.KeyInlinePDF, inlineFlag); err != nil {
			return nil, err
		}
	}

	cfg, err := dependencies.LoadConfig(dependencies.Viper)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLoggerWithWriter(dependencies.LogOutput, cfg.LogLevel)
	mailService, err := dependencies.NewService(&cfg, logger)
	if err != nil {
		return nil, err
	}
	if mailService == nil {
		return nil, errors.New("mail service is not configured")
	}
	return mailService, nil
}

func printSubmission(writer io.Writer, submission service.Submission) error {
	writer = output(writer)
	if !submission.Parsed {
		_, err := fmt.Fprintf(writer, "%s submitted: %s\n", submission.Kind, submission.Response)
		return err
	}

	result := submission.Result
	if _, err := fmt.Fprintf(writer, "%s %s submitted with status %s\n", submission.Kind, result.ID, result.Status); err != nil {
		return err
	}
	if result.Cost != "" {
		if _, err := fmt.Fprintf(writer, "Cost: %s\n", result.Cost); err != nil {
			return err
		}
	}
	if result.PDF != "" {
		if _, err := fmt.Fprintf(writer, "Preview: %s\n", result.PDF); err != nil {
			return err
		}
	}
	return nil
}

func output(writer io.Writer) io.Writer {
	if writer == nil {
		return io.Discard
	}
	return writer
}

func markRequired(cmd *cobra.Command, name string) {
	_ = cmd.MarkFlagRequired(name)
}
