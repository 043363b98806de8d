package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/golaborate-vna/vna"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "vnaserver.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	if err := LoadConfig(k, ConfigFileName); err != nil {
		log.Fatalf("error loading config: %v", err)
	}
}

func loadconfig() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func root() {
	str := `vnaserver exposes control of Rohde & Schwarz ZVA vector network analyzers over HTTP
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom VISA logic.

Usage:
	vnaserver <command>

Commands:
	run
	acquire <ports> <file>
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `vnaserver is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

Instrument.Address is a VISA resource string, for example
	TCPIP0::192.168.100.50::5025::SOCKET  (the default)
	TCPIP::192.168.100.50::INSTR     (needs a native VISA library, Library: ni)
	GPIB0::20::INSTR                 (through a Prologix controller, PrologixPort)
	USB0::0x0AAD::0x0044::100001::INSTR
	ASRL/dev/ttyUSB0::INSTR

Mock: true serves an in-memory analyzer with four S-parameter traces on channel 1,
which is useful for developing clients.

acquire reads an N-port network from the active channel after a sweep and writes it
to a file.  The format follows the extension: .sNp (Touchstone), .csv, .fits, or .json.
	vnaserver acquire 1,2 thru.s2p

Networks acquired over HTTP are also written to Recorder.Root when the recorder is
enabled, and to influx when Influx.Enabled is true.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("vnaserver version %v\n", Version)
}

func run() {
	c := loadconfig()
	z, err := OpenAnalyzer(c)
	if err != nil {
		log.Fatal(err)
	}
	defer z.Close()
	idn, err := z.IDN()
	if err != nil {
		log.Fatal(err)
	}
	log.Println("connected to", idn)

	rec, err := NewRecorder(c)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(c, z, rec)
	log.Println("now listening for requests at ", c.Addr+"/"+strings.Trim(c.Endpoint, "/"))
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func acquire(args []string) {
	if len(args) != 2 {
		log.Fatal("usage: vnaserver acquire <ports> <file>")
	}
	ports, err := ParsePorts(args[0])
	if err != nil {
		log.Fatal(err)
	}
	c := loadconfig()
	z, err := OpenAnalyzer(c)
	if err != nil {
		log.Fatal(err)
	}
	defer z.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           "sweeping ports " + vna.PortString(ports),
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	ntwk, err := z.SNPNetwork(ports, vna.SNPOptions{Sweep: true})
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		z.Close()
		os.Exit(1)
	}
	spinner.Message("writing " + args[1])
	if err = WriteNetworkFile(args[1], ntwk); err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		z.Close()
		os.Exit(1)
	}
	spinner.StopMessage(fmt.Sprintf("%s: %d points written to %s", ntwk.Name, ntwk.NPoints(), args[1]))
	spinner.Stop()
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "acquire":
		acquire(args[2:])
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
