package main

import (
	"flag"
	"os"

	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"

	"pennywize/src/pkg/config"
	"pennywize/src/pkg/digest"
	"pennywize/src/pkg/email"
	"pennywize/src/pkg/store"
	"pennywize/src/pkg/util"
)

/*
main runs one digest batch from the command line.

Example:

	go run ./src/cmd/send-digest -type weekly -send-emails
	go run ./src/cmd/send-digest -type monthly -dry
*/
func main() {
	config.CheckIfEnvVarsPresent("SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY")

	// common flags
	configPath := flag.String("config", "./cfg/config.json", "Path to your configuration file.")
	// program's custom flags
	digestType := flag.String("type", "", "Digest type to send: weekly or monthly.")
	dryRun := flag.Bool("dry", false, "Count opted-in recipients and exit without composing or sending.")
	sendEmails := flag.Bool("send-emails", false, "Actually dispatch emails instead of logging would-be sends.")

	// parse and init config
	flag.Parse()
	util.RequiredFlag(digestType, "type")
	util.EnsureFlags()
	config.InitializeConfig(*configPath)

	// Provider credentials are only known after config init; a live
	// sender with missing keys must abort here, not per recipient.
	if *sendEmails {
		config.CheckIfEnvVarsPresent(email.RequiredEnvVars(email.Provider(config.Cfg.Digest.EmailProvider))...)
	}

	kind := digest.RunKind(*digestType)
	if kind != digest.RunWeekly && kind != digest.RunMonthly {
		tl.Log(tl.Error, palette.Red, "Unknown digest type '%s'. Use '%s' or '%s'", *digestType, digest.RunWeekly, digest.RunMonthly)
		os.Exit(1)
	}

	tl.Log(
		tl.Notice, palette.BlueBold, "%s '%s' digest entrypoint. Config path: '%s'",
		"Running", kind, *configPath,
	)

	storeClient := store.NewClient(os.Getenv("SUPABASE_URL"), os.Getenv("SUPABASE_SERVICE_ROLE_KEY"))

	sender := email.ProviderSender{
		Provider:   email.Provider(config.Cfg.Digest.EmailProvider),
		SendEmails: *sendEmails,
	}

	orchestrator := digest.NewOrchestrator(storeClient, sender, digest.Config{
		SiteURL:        config.Cfg.Digest.SiteURL,
		LogoURL:        config.Cfg.Digest.LogoURL,
		SenderAddress:  config.Cfg.Digest.SenderAddress,
		ChartWidth:     config.Cfg.Digest.ChartWidth,
		ChartHeight:    config.Cfg.Digest.ChartHeight,
		WeeklyRowLimit: config.Cfg.Digest.WeeklyRowLimit,
	})
	orchestrator.LogoBytes = loadLogoBytes(config.Cfg.Digest.LogoPath)

	summary, e := orchestrator.Run(kind, *dryRun)
	e.QuitIf("error")

	tl.LogJSON(tl.Notice1, palette.GreenBold, "run summary", summary)
}

func loadLogoBytes(logoPath string) []byte {
	if logoPath == "" {
		return nil
	}
	logoBytes, readErr := os.ReadFile(logoPath)
	if readErr != nil {
		tl.Log(tl.Warning, palette.PurpleBright, "Unable to read logo file '%s': %s. Emails go out %s", logoPath, readErr, "without the inline logo")
		return nil
	}
	return logoBytes
}
