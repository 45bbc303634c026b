package model

// Node is the full descriptor of one cloud server, as returned by the
// node-lookup boundary.
type Node struct {
	ID              string
	Name            string
	Description     string
	PrivateIPs      []string
	PublicIP        string // "" when the server has no public address
	IPv6            string
	DatacenterID    string
	NetworkDomainID string
	VlanID          string
	VlanName        string
	SourceImageID   string
	DeployedTime    string
	State           string
	Started         bool
	CPUCount        int
	MemoryMB        int
	OSID            string
	OSType          string
	OSDisplayName   string
	Disks           []int // sizes in GB, SCSI controller order
}

// PrimaryPrivateIP returns the first private address of the node, or "".
func (n *Node) PrimaryPrivateIP() string {
	if len(n.PrivateIPs) == 0 {
		return ""
	}
	return n.PrivateIPs[0]
}

// ServerEvent is one normalized server-lifecycle activation, built from an
// audit log row plus the resolved node descriptor. Events are consumed once
// by the sink dispatcher and then discarded.
type ServerEvent struct {
	Name            string `json:"name"`
	ID              string `json:"id"`
	Action          string `json:"action"`
	Timestamp       string `json:"timestamp"`
	Region          string `json:"region"`
	Description     string `json:"description,omitempty"`
	PrivateIP       string `json:"private_ip"`
	PublicIP        string `json:"public_ip,omitempty"`
	SourceImageID   string `json:"source_image_id"`
	NetworkDomainID string `json:"network_domain_id"`
	DatacenterID    string `json:"datacenter_id"`
	DeployedTime    string `json:"deployed_time"`
	CPUCount        int    `json:"cpu_count"`
	MemoryMB        int    `json:"memory_mb"`
	OSID            string `json:"os_id"`
	OSType          string `json:"os_type"`
	OSDisplayName   string `json:"os_display_name"`
	Disks           []int  `json:"disk_sizes_gb"`
}
