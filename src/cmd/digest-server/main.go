package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"

	"pennywize/src/pkg/config"
	"pennywize/src/pkg/digest"
	echomw "pennywize/src/pkg/echo-middleware"
	"pennywize/src/pkg/email"
	"pennywize/src/pkg/store"
)

/*
main starts the digest trigger server.

Exposes:

	POST /api/digest/:kind?dry=true  (kind: weekly|monthly, bearer-protected)
	GET  /healthz

A scheduler (cron, GitHub Actions, whatever) hits the POST endpoint;
the digest batch itself runs in the request goroutine and the summary
comes back as JSON.
*/
func main() {
	config.CheckIfEnvVarsPresent(
		"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY",
		"PW_DIGEST_BEARER_TOKEN",
	)

	// common flags
	configPath := flag.String("config", "./cfg/config.json", "Path to your configuration file.")
	// program's custom flags
	sendEmailsFlag := flag.Bool("send-emails", false, "Actually dispatch emails instead of logging would-be sends.")

	// parse and init config
	flag.Parse()
	config.InitializeConfig(*configPath)

	// Provider credentials are only known after config init; a live
	// sender with missing keys must abort here, not per recipient.
	if *sendEmailsFlag {
		config.CheckIfEnvVarsPresent(email.RequiredEnvVars(email.Provider(config.Cfg.Digest.EmailProvider))...)
	}

	echomw.InitializeConfig(&echomw.Config{
		Address:             config.Cfg.Server.Address,
		Port:                config.Cfg.Server.Port,
		MiddlewareRateLimit: config.Cfg.Server.MiddlewareRateLimit,
		MiddlewareBurst:     config.Cfg.Server.MiddlewareBurst,
	})

	tl.Log(
		tl.Notice, palette.BlueBold, "%s digest server entrypoint. Config path: '%s'",
		"Running", *configPath,
	)

	orchestrator := buildOrchestrator(*sendEmailsFlag)

	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(echomw.RouteAccessLoggerMiddleware)
	server.Use(echomw.RateLimiterMiddleware)

	server.GET("/healthz", handleHealthz)
	server.POST("/api/digest/:kind", makeDigestHandler(orchestrator), echomw.RequireBearerToken)

	address := fmt.Sprintf("%s:%d", echomw.Cfg.Address, echomw.Cfg.Port)
	tl.Log(tl.Notice1, palette.GreenBold, "%s on '%s'", "Listening", address)

	startErr := server.Start(address)
	xerr.QuitIfError(startErr, "start digest server")
}

/*
buildOrchestrator wires the store client, the provider sender and the
run configuration together. The logo asset is loaded once here; a
missing file only disables the inline attachment.
*/
func buildOrchestrator(sendEmails bool) *digest.Orchestrator {
	storeClient := store.NewClient(os.Getenv("SUPABASE_URL"), os.Getenv("SUPABASE_SERVICE_ROLE_KEY"))

	sender := email.ProviderSender{
		Provider:   email.Provider(config.Cfg.Digest.EmailProvider),
		SendEmails: sendEmails,
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

	return orchestrator
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

func makeDigestHandler(orchestrator *digest.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := digest.RunKind(c.Param("kind"))
		if kind != digest.RunWeekly && kind != digest.RunMonthly {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("unknown digest kind '%s'", kind),
			})
		}

		dryRun := c.QueryParam("dry") == "true"

		summary, e := orchestrator.Run(kind, dryRun)
		if e != nil {
			tl.Log(tl.Error, palette.RedBold, "Digest run '%s' failed: %s", kind, e)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "digest run failed",
			})
		}

		return c.JSON(http.StatusOK, summary)
	}
}

func handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
