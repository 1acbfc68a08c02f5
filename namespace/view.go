package namespace

import (
	"github.com/cern-eos/eos-sub029/cmn"
)

// View composes ContainerMDSvc and FileMDSvc into path-addressed operations
// over the namespace tree (spec §4.4). Child linkage lives only in memory -
// a ContainerMD's Containers map is rebuilt from ParentID pointers during
// ContainerMDSvc.Initialize and its Files map from ContainerID fields during
// View.Initialize, neither persisted itself (spec §6) - so View is also
// where that linkage is maintained as the tree mutates.
type View struct {
	Containers *ContainerMDSvc
	Files      *FileMDSvc
}

func NewView(containers *ContainerMDSvc, files *FileMDSvc) *View {
	return &View{Containers: containers, Files: files}
}

// Initialize relinks every live file into its parent container's Files map.
// Containers and Files must already have been through their own Initialize
// by this point: ContainerMDSvc.materialize rebuilds the Containers side of
// the tree from ParentID pointers, but has no notion of files, so nothing
// repopulates a ContainerMD.Files map on replay until this step runs
// (mirrors materialize's own parent.AddContainer relinking, spec §4.3/§4.4).
func (v *View) Initialize() error {
	var relinkErr error
	v.Files.Visit(func(f *FileMD) bool {
		parent, err := v.Containers.GetContainerMD(f.ContainerID)
		if err != nil {
			relinkErr = cmn.NewCorruptError("file %d references missing container %d", f.ID, f.ContainerID)
			return false
		}
		parent.AddFile(f.Name, f.ID)
		return true
	})
	return relinkErr
}

// resolveContainer walks from the root container following parts, erroring
// on the first missing path component.
func (v *View) resolveContainer(parts []string) (*ContainerMD, error) {
	cur, err := v.Containers.GetContainerMD(RootContainerID)
	if err != nil {
		return nil, err
	}
	for _, name := range parts {
		id, ok := cur.FindContainer(name)
		if !ok {
			return nil, cmn.NewNotFoundError("no such container %q", name)
		}
		cur, err = v.Containers.GetContainerMD(id)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func (v *View) GetContainer(uri string) (*ContainerMD, error) {
	return v.resolveContainer(splitURI(uri))
}

func (v *View) GetFile(uri string) (*FileMD, error) {
	parts := splitURI(uri)
	if len(parts) == 0 {
		return nil, cmn.NewInvalidError("empty file path %q", uri)
	}
	parent, err := v.resolveContainer(parts[:len(parts)-1])
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	id, ok := parent.FindFile(name)
	if !ok {
		return nil, cmn.NewNotFoundError("no such file %q", uri)
	}
	return v.Files.GetFileMD(id)
}

// CreateContainer creates the container named by uri. If createParents is
// set, missing ancestors are created along the way, matching mkdir -p.
func (v *View) CreateContainer(uri string, createParents bool) (*ContainerMD, error) {
	parts := splitURI(uri)
	if len(parts) == 0 {
		return nil, cmn.NewInvalidError("cannot create the root container")
	}
	parent, err := v.Containers.GetContainerMD(RootContainerID)
	if err != nil {
		return nil, err
	}
	for _, name := range parts[:len(parts)-1] {
		id, ok := parent.FindContainer(name)
		if ok {
			parent, err = v.Containers.GetContainerMD(id)
			if err != nil {
				return nil, err
			}
			continue
		}
		if !createParents {
			return nil, cmn.NewNotFoundError("no such container %q", name)
		}
		parent, err = v.createChildContainer(parent, name)
		if err != nil {
			return nil, err
		}
	}

	name := parts[len(parts)-1]
	if _, ok := parent.FindContainer(name); ok {
		return nil, cmn.NewExistsError("container %q already exists", uri)
	}
	return v.createChildContainer(parent, name)
}

func (v *View) createChildContainer(parent *ContainerMD, name string) (*ContainerMD, error) {
	c := v.Containers.CreateContainer()
	c.ParentID = parent.ID
	c.Name = name
	if err := v.Containers.UpdateStore(c); err != nil {
		return nil, err
	}
	parent.AddContainer(name, c.ID)
	return c, nil
}

// CreateFile creates an empty file record under uri's parent container.
func (v *View) CreateFile(uri string, uid, gid uint32) (*FileMD, error) {
	parts := splitURI(uri)
	if len(parts) == 0 {
		return nil, cmn.NewInvalidError("empty file path %q", uri)
	}
	parent, err := v.resolveContainer(parts[:len(parts)-1])
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	if _, ok := parent.FindFile(name); ok {
		return nil, cmn.NewExistsError("file %q already exists", uri)
	}
	f := v.Files.CreateFile(parent.ID, name)
	f.UID = uid
	f.GID = gid
	if err := v.Files.UpdateStore(f); err != nil {
		return nil, err
	}
	parent.AddFile(name, f.ID)
	return f, nil
}

func (v *View) RemoveFile(uri string) error {
	parts := splitURI(uri)
	if len(parts) == 0 {
		return cmn.NewInvalidError("empty file path %q", uri)
	}
	parent, err := v.resolveContainer(parts[:len(parts)-1])
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	id, ok := parent.FindFile(name)
	if !ok {
		return cmn.NewNotFoundError("no such file %q", uri)
	}
	if err := v.Files.RemoveFile(id); err != nil {
		return err
	}
	parent.RemoveFile(name)
	return nil
}

// RemoveContainer removes the container named by uri. Non-empty containers
// require recursive=true, which removes files before subcontainers, depth
// first (spec §4.4's container-emptiness invariant).
func (v *View) RemoveContainer(uri string, recursive bool) error {
	parts := splitURI(uri)
	if len(parts) == 0 {
		return cmn.NewInvalidError("cannot remove the root container")
	}
	parent, err := v.resolveContainer(parts[:len(parts)-1])
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	id, ok := parent.FindContainer(name)
	if !ok {
		return cmn.NewNotFoundError("no such container %q", uri)
	}
	c, err := v.Containers.GetContainerMD(id)
	if err != nil {
		return err
	}
	if !c.Empty() {
		if !recursive {
			return cmn.NewNotEmptyError("container %q is not empty", uri)
		}
		if err := v.removeChildrenRecursive(c); err != nil {
			return err
		}
	}
	if err := v.Containers.RemoveContainer(id); err != nil {
		return err
	}
	parent.RemoveContainer(name)
	return nil
}

func (v *View) removeChildrenRecursive(c *ContainerMD) error {
	for name, id := range c.Files {
		if err := v.Files.RemoveFile(id); err != nil {
			return err
		}
		delete(c.Files, name)
	}
	for name, id := range c.Containers {
		child, err := v.Containers.GetContainerMD(id)
		if err != nil {
			return err
		}
		if !child.Empty() {
			if err := v.removeChildrenRecursive(child); err != nil {
				return err
			}
		}
		if err := v.Containers.RemoveContainer(id); err != nil {
			return err
		}
		delete(c.Containers, name)
	}
	return nil
}

func (v *View) UpdateFileStore(f *FileMD) error { return v.Files.UpdateStore(f) }

func (v *View) UpdateContainerStore(c *ContainerMD) error { return v.Containers.UpdateStore(c) }
