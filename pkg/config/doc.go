/*
Package config loads the YAML configuration file shared by the worker,
scheduler, size cacher, and orvdmctl binaries.

A typical file looks like:

	controlPlane:
	  baseURL: http://localhost:8080
	  timeout: 5s
	broker:
	  connectionString: localhost:4730
	  queues: [newJob]
	warehouse:
	  smbCredentialsFile: /opt/orvdm/.smb-credentials
	  sshKeyFile: /opt/orvdm/.ssh/id_rsa
	  pluginDir: /opt/orvdm/plugins
	scheduler:
	  intervalMinutes: 2
	  raftPeers: ["scheduler-2=10.0.0.2:7000"]
	logLevel: info

Fields left unset in the file take the defaults documented on each
struct's zero value; see applyDefaults. Binaries layer cobra flags on
top of a loaded Config rather than duplicating its fields as package
globals, matching how the control plane's own settings are sourced
from its database rather than flags.
*/
package config
