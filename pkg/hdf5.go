package merger

import (
	hdf5 "github.com/jmbenlloch/go-hdf5"
)

type RunInfoHDF5 struct {
	run_number    int32
	match_window  int32
	orphan_policy [STRLEN]byte
	pad_map       [STRLEN]byte
	session       [STRLEN]byte
}

type FribInfoHDF5 struct {
	run_number int32
	start_time int32
	stop_time  int32
	elapsed    int32
	title      [STRLEN]byte
}

type CountersHDF5 struct {
	trigger_events  int64
	orphan_events   int64
	frames_decoded  int64
	frames_matched  int64
	frames_orphaned int64
	fpn_rejected    int64
	unmapped        int64
	frames_dropped  int64
	ring_dropped    int64
	first_stamp     uint64
	last_stamp      uint64
}

type EventDataHDF5 struct {
	evt_number  int64
	trigger_id  int32
	orphan      int32
	timestamp   uint64
	live_time   uint32
	dead_time   uint32
	n_traces    int32
	first_trace int64
}

type ScalersHDF5 struct {
	start_offset int32
	stop_offset  int32
	timestamp    int32
	incremental  int32
}

const STRLEN = 64

const deflateLevel = 4

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func openFile(fname string) (*hdf5.File, error) {
	return hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	return file.CreateGroup(groupName)
}

// createMatrix makes an extendable 2d dataset with a fixed number of columns
// and one row per event.
func createMatrix(group *hdf5.Group, name string, columns int, dtype *hdf5.Datatype) (*hdf5.Dataset, error) {
	dims := []uint{0, 0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims), uint(columns)}

	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, err
	}

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, err
	}

	chunks := []uint{1, 32768}
	if columns < 32768 {
		chunks[1] = uint(columns)
	}
	plist.SetChunk(chunks)
	plist.SetDeflate(deflateLevel)

	return group.CreateDatasetWith(name, dtype, fileSpace, plist)
}

func createTable(group *hdf5.Group, name string, datatype interface{}) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, err
	}

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, err
	}

	chunks := []uint{32768}
	plist.SetChunk(chunks)
	plist.SetDeflate(deflateLevel)

	// create the memory data type
	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, err
	}

	return group.CreateDatasetWith(name, dtype, fileSpace, plist)
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, counter int) error {
	array := []T{data}
	return writeArrayToTable(dataset, &array, counter)
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, counter int) error {
	length := uint(len(*data))
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	// extend
	rowsInFile := uint(counter)
	newsize := []uint{rowsInFile + length}
	dataset.Resize(newsize)
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{rowsInFile}
	count := []uint{length}
	filespace.SelectHyperslab(start, nil, count, nil)

	return dataset.WriteSubset(data, dataspace, filespace)
}

func writeMatrixRow[T any](dataset *hdf5.Dataset, data *[]T, row int, columns int) error {
	// extend
	newsize := []uint{uint(row) + 1, uint(columns)}
	dataset.Resize(newsize)
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{uint(row), 0}
	count := []uint{1, uint(columns)}
	filespace.SelectHyperslab(start, nil, count, nil)

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	return dataset.WriteSubset(data, dataspace, filespace)
}
