package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mcp-watch/mcpwatch/internal/model"
)

// xmlServer mirrors the /server/server/{id} payload. Only the attributes the
// pipeline consumes are mapped.
type xmlServer struct {
	ID           string `xml:"id,attr"`
	DatacenterID string `xml:"datacenterId,attr"`
	Name         string `xml:"name"`
	Description  string `xml:"description"`
	CPU          struct {
		Count int `xml:"count,attr"`
	} `xml:"cpu"`
	MemoryGB    int `xml:"memoryGb"`
	NetworkInfo struct {
		NetworkDomainID string `xml:"networkDomainId,attr"`
		PrimaryNIC      struct {
			PrivateIPv4 string `xml:"privateIpv4,attr"`
			IPv6        string `xml:"ipv6,attr"`
			VlanID      string `xml:"vlanId,attr"`
			VlanName    string `xml:"vlanName,attr"`
		} `xml:"primaryNic"`
	} `xml:"networkInfo"`
	SourceImageID string `xml:"sourceImageId"`
	CreateTime    string `xml:"createTime"`
	Started       bool   `xml:"started"`
	State         string `xml:"state"`
	Guest         struct {
		OperatingSystem struct {
			ID          string `xml:"id,attr"`
			DisplayName string `xml:"displayName,attr"`
			Family      string `xml:"family,attr"`
		} `xml:"operatingSystem"`
	} `xml:"guest"`
	SCSIController struct {
		Disks []struct {
			SizeGB int `xml:"sizeGb,attr"`
		} `xml:"disk"`
	} `xml:"scsiController"`
}

type xmlNATRules struct {
	Rules []struct {
		ExternalIP string `xml:"externalIp"`
	} `xml:"natRule"`
}

// NodeByID resolves a server id to its full descriptor. Returns a
// *LookupError when the API rejects the id or the payload cannot be decoded.
// The public address is not resolved here; see PublicIP.
func (e *Endpoint) NodeByID(ctx context.Context, id string) (*model.Node, error) {
	var item xmlServer
	if err := e.client.GetXML(ctx, e.v2+"/server/server/"+id, nil, &item); err != nil {
		return nil, &LookupError{Region: e.region, ID: id, Err: err}
	}
	if item.ID == "" {
		return nil, &LookupError{Region: e.region, ID: id, Err: fmt.Errorf("no server element in response")}
	}

	node := &model.Node{
		ID:              item.ID,
		Name:            item.Name,
		Description:     item.Description,
		DatacenterID:    item.DatacenterID,
		NetworkDomainID: item.NetworkInfo.NetworkDomainID,
		IPv6:            item.NetworkInfo.PrimaryNIC.IPv6,
		VlanID:          item.NetworkInfo.PrimaryNIC.VlanID,
		VlanName:        item.NetworkInfo.PrimaryNIC.VlanName,
		SourceImageID:   item.SourceImageID,
		DeployedTime:    item.CreateTime,
		Started:         item.Started,
		State:           item.State,
		CPUCount:        item.CPU.Count,
		MemoryMB:        item.MemoryGB * 1024,
		OSID:            item.Guest.OperatingSystem.ID,
		OSType:          item.Guest.OperatingSystem.Family,
		OSDisplayName:   item.Guest.OperatingSystem.DisplayName,
	}
	if ip := item.NetworkInfo.PrimaryNIC.PrivateIPv4; ip != "" {
		node.PrivateIPs = []string{ip}
	}
	for _, disk := range item.SCSIController.Disks {
		node.Disks = append(node.Disks, disk.SizeGB)
	}
	return node, nil
}

// PublicIP resolves the external address of a server through its NAT rule.
// The API does not report public IPv4 reliably on the server payload, so
// the NAT rule keyed by network domain and internal address is authoritative.
// Returns "" with a nil error when no rule exists.
func (e *Endpoint) PublicIP(ctx context.Context, networkDomainID, privateIP string) (string, error) {
	q := url.Values{
		"networkDomainId": {networkDomainID},
		"internalIp":      {privateIP},
	}

	var rules xmlNATRules
	if err := e.client.GetXML(ctx, e.v2+"/network/natRule", q, &rules); err != nil {
		return "", &LookupError{Region: e.region, ID: privateIP, Err: err}
	}
	if len(rules.Rules) == 0 {
		return "", nil
	}
	return rules.Rules[0].ExternalIP, nil
}
