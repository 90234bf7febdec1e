package bluetooth

// AdapterData holds the properties of a Bluetooth adapter.
type AdapterData struct {
	// Name holds the system-assigned name of the adapter.
	Name string `json:"name,omitempty" codec:"Name,omitempty"`

	// Alias holds the user-assigned name of the adapter, which
	// is what remote hosts see during discovery.
	Alias string `json:"alias,omitempty" codec:"Alias,omitempty"`

	// UniqueName holds the kernel name of the adapter, for example "hci0".
	UniqueName string `json:"unique_name,omitempty" codec:"UniqueName,omitempty"`

	// Address holds the hardware address of the adapter.
	Address Address `json:"address,omitempty" codec:"Address,omitempty"`

	// Class holds the device class advertised by the adapter.
	Class uint32 `json:"class,omitempty" codec:"Class,omitempty"`

	Powered             bool   `json:"powered,omitempty" codec:"Powered,omitempty"`
	Discoverable        bool   `json:"discoverable,omitempty" codec:"Discoverable,omitempty"`
	DiscoverableTimeout uint32 `json:"discoverable_timeout,omitempty" codec:"DiscoverableTimeout,omitempty"`
	Pairable            bool   `json:"pairable,omitempty" codec:"Pairable,omitempty"`
}

// DeviceData holds the properties of a remote device that are relevant
// to the keyboard session.
type DeviceData struct {
	Path      string  `json:"path,omitempty" codec:"-"`
	Name      string  `json:"name,omitempty" codec:"Name,omitempty"`
	Alias     string  `json:"alias,omitempty" codec:"Alias,omitempty"`
	Address   Address `json:"address,omitempty" codec:"Address,omitempty"`
	Connected bool    `json:"connected,omitempty" codec:"Connected,omitempty"`
	Paired    bool    `json:"paired,omitempty" codec:"Paired,omitempty"`
}
