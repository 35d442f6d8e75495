package cli

import "cromp/internal/global"

func DefineOptions() (cmdOpts *global.CommandSet) {
	// Root level
	root := &global.CommandSet{
		Description:     "CROMP RPC Transport (cromp)",
		FullDescription: "  Serves and issues classifier addressed requests over a framed, optionally encrypted TCP transport",
		CommandName:     RootCLICommand,
		ChildCommands:   make(map[string]*global.CommandSet),
	}

	// Serving
	root.ChildCommands["serve"] = &global.CommandSet{
		CommandName:     "serve",
		Description:     "Run Server",
		FullDescription: "Accepts clients, authenticates them and dispatches their requests to registered handlers",
		ChildCommands:   nil,
	}

	// Client check
	root.ChildCommands["ping"] = &global.CommandSet{
		CommandName:     "ping",
		Description:     "Ping Server",
		FullDescription: "Connects to a server, logs in and round-trips echo requests",
		ChildCommands:   nil,
	}

	// File copies
	root.ChildCommands["transfer"] = &global.CommandSet{
		CommandName:     "transfer",
		Description:     "Copy Files From Server",
		FullDescription: "Lists or copies a directory tree the server publishes under a mapping name",
		ChildCommands:   nil,
	}

	// Setup
	root.ChildCommands["configure"] = &global.CommandSet{
		CommandName:     "configure",
		Description:     "Setup Actions",
		FullDescription: "Write a server configuration file filled with defaults",
		ChildCommands:   nil,
	}

	// Version Info
	root.ChildCommands["version"] = &global.CommandSet{
		CommandName:     "version",
		Description:     "Show Version Information",
		FullDescription: "Display meta information about program",
	}

	cmdOpts = root
	return
}
