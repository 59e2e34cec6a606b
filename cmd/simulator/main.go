// Command simulator runs one OCPP 1.6 charge-point session: it loads a
// config.yaml, opens the durable and session KV stores, and drives the
// engine from an interactive stdin command loop — the adaptation of the
// teacher's main.go to internal/chargepoint's Engine.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/chargepoint"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/config"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/connector"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/logging"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/observer"
)

// cliObserver prints engine notifications to stdout, so the interactive
// loop stays aware of state changes the user didn't directly trigger
// (an inbound RemoteStartTransaction, a server-initiated ChangeAvailability).
type cliObserver struct{}

func (cliObserver) OnStatusChange(status string, detail string) {
	if detail == "" {
		fmt.Printf("[status] %s\n", status)
		return
	}
	fmt.Printf("[status] %s (%s)\n", status, detail)
}

func (cliObserver) OnAvailabilityChange(connectorID int, availability string) {
	fmt.Printf("[availability] connector %d -> %s\n", connectorID, availability)
}

func (cliObserver) OnConnectorStatusChange(connectorID int, status string) {
	fmt.Printf("[connector %d] %s\n", connectorID, status)
}

func (cliObserver) OnMeterValueChange(value int) {
	fmt.Printf("[meter] %d Wh\n", value)
}

func (cliObserver) OnLog(line string) {
	fmt.Printf("[log] %s\n", line)
}

var _ observer.Observer = cliObserver{}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	durable, err := kvstore.OpenSqliteStore(cfg.DurableStatePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open durable state store")
	}
	defer durable.Close()

	sessKV := kvstore.NewMemStore()

	log.Info().
		Str("cp_id", cfg.CpId).
		Str("ws_url", cfg.WsUrl).
		Strs("subprotocols", cfg.Subprotocols).
		Msg("OCPP 1.6 charge-point simulator starting")

	eng := chargepoint.New(cfg, log, durable, sessKV, cliObserver{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go interactiveLoop(eng, cfg)

	fmt.Println("Charge point simulator ready. Type 'connect' to connect to server, 'help' for commands.")

	<-sigCh
	fmt.Println("Shutting down...")
	eng.Disconnect()
}

func interactiveLoop(eng *chargepoint.Engine, cfg *config.Config) {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			continue
		}

		parts := strings.Fields(strings.TrimSpace(input))
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case "help":
			printHelp()

		case "connect":
			if eng.Connected() {
				fmt.Println("Already connected")
				continue
			}
			if err := eng.Connect(); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println("Connected to server")

		case "disconnect":
			if !eng.Connected() {
				fmt.Println("Not connected")
				continue
			}
			eng.Disconnect()
			fmt.Println("Disconnected from server")

		case "authorize":
			idTag := cfg.DefaultIdTag
			if len(parts) >= 2 {
				idTag = parts[1]
			}
			if err := eng.Authorize(idTag); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "status":
			if len(parts) < 3 {
				fmt.Println("Usage: status <connectorId> <status>")
				fmt.Println("Valid statuses: Available, Preparing, Charging, SuspendedEVSE, SuspendedEV, Finishing, Reserved, Unavailable, Faulted")
				continue
			}
			connID, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Printf("Error: invalid connector id: %s\n", parts[1])
				continue
			}
			eng.SetConnectorStatus(connID, parts[2], true)
			fmt.Printf("Connector %d status updated to: %s\n", connID, parts[2])

		case "availability":
			if len(parts) < 3 {
				fmt.Println("Usage: availability <connectorId> <Operative|Inoperative>")
				continue
			}
			connID, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Printf("Error: invalid connector id: %s\n", parts[1])
				continue
			}
			if err := eng.SetConnectorAvailability(connID, parts[2]); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "start":
			if len(parts) < 2 {
				fmt.Println("Usage: start <idTag> [connectorId]")
				continue
			}
			idTag := parts[1]
			connID := connector.ConnectorOutlet1
			if len(parts) >= 3 {
				if n, err := strconv.Atoi(parts[2]); err == nil {
					connID = n
				}
			}
			if err := eng.StartTransaction(idTag, connID, 0); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("Transaction started")
			}

		case "stop":
			reason := "Local"
			if len(parts) >= 2 {
				reason = parts[1]
			}
			if err := eng.StopTransaction(cfg.DefaultIdTag, reason); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("Transaction stopped")
			}

		case "meter":
			connID := connector.ConnectorOutlet1
			if len(parts) >= 2 {
				if n, err := strconv.Atoi(parts[1]); err == nil {
					connID = n
				}
			}
			if err := eng.SendMeterValues(connID); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Println("MeterValues sent")
			}

		case "setmeter":
			if len(parts) < 2 {
				fmt.Println("Usage: setmeter <Wh> [notify]")
				continue
			}
			value, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Printf("Error: invalid meter value: %s\n", parts[1])
				continue
			}
			notify := len(parts) >= 3 && parts[2] == "notify"
			if err := eng.SetMeterValue(value, notify); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "plate":
			if len(parts) < 2 {
				fmt.Println("Usage: plate <license_plate> [connectorId]")
				continue
			}
			connID := connector.ConnectorOutlet1
			if len(parts) >= 3 {
				if n, err := strconv.Atoi(parts[2]); err == nil {
					connID = n
				}
			}
			if err := eng.SetLicensePlate(parts[1], connID); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("License plate set: %s\n", parts[1])
			}

		case "heartbeat":
			if err := eng.Heartbeat(); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "info":
			fmt.Printf("Connected: %v\n", eng.Connected())
			fmt.Printf("Session status: %s\n", eng.Status())
			for _, c := range []int{connector.ConnectorChargePoint, connector.ConnectorOutlet1, connector.ConnectorOutlet2} {
				fmt.Printf("Connector %d: status=%s availability=%s\n", c, eng.ConnectorStatus(c), eng.ConnectorAvailability(c))
			}

		case "quit", "exit":
			fmt.Println("Use Ctrl+C to exit")

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  help                          - Show this help message")
	fmt.Println("  connect                       - Connect to OCPP server (sends BootNotification)")
	fmt.Println("  disconnect                    - Disconnect from server")
	fmt.Println("  authorize [idTag]             - Authorize an idTag (defaults to config's default_id_tag)")
	fmt.Println("  start <idTag> [connectorId]   - Start a transaction (default connector 1)")
	fmt.Println("  stop [reason]                 - Stop the current transaction")
	fmt.Println("  status <connectorId> <status> - Set a connector's status and notify the server")
	fmt.Println("  availability <connectorId> <Operative|Inoperative> - Set a connector's availability")
	fmt.Println("  plate <plate> [connectorId]   - Send license plate via DataTransfer")
	fmt.Println("  meter [connectorId]           - Send MeterValues immediately")
	fmt.Println("  setmeter <Wh> [notify]        - Set the stored meter reading")
	fmt.Println("  heartbeat                     - Send a Heartbeat on demand")
	fmt.Println("  info                          - Show current charge point and connector status")
	fmt.Println("  quit/exit                     - Print how to exit (the simulator exits on Ctrl+C)")
}
